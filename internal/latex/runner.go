// Package latex runs the fixed LaTeX/bibliography compilation sequence for a project.
//
// The sequence is the engine once, or, when the project folder holds a .bib file,
// engine, bibliography program, engine, engine. Every process runs in the project
// folder with its output appended to transcript files next to the source.
package latex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"git.home.luguber.info/inful/texbot/internal/compiler"
	tberrors "git.home.luguber.info/inful/texbot/internal/errors"
	"git.home.luguber.info/inful/texbot/internal/logfields"
	"git.home.luguber.info/inful/texbot/internal/observability"
	"git.home.luguber.info/inful/texbot/internal/project"
)

// PassKind tells engine passes from the bibliography pass.
type PassKind string

const (
	PassEngine       PassKind = "engine"
	PassBibliography PassKind = "bibliography"
)

// Transcript suffixes appended to the source's base name.
const (
	SuffixStdout             = ".stdout"
	SuffixStderr             = ".stderr"
	SuffixBibliographyStdout = ".blg.stdout"
	SuffixBibliographyStderr = ".blg.stderr"
)

// Options are the process controls taken from the compiler configuration.
type Options struct {
	Timeout     time.Duration
	ShellEscape bool
	Sandbox     []string          // argv prefix wrapping every process
	Binaries    map[string]string // program identifier -> executable path
}

// Pass records one finished compiler invocation.
type Pass struct {
	Program  string
	Kind     PassKind
	ExitCode int
	Duration time.Duration
}

// Outcome is the result of a completed build. Non-zero exit codes land here,
// not in the error return.
type Outcome struct {
	Passes         []Pass
	CompilerErrors bool
	PDF            PDFInfo
	PDFPresent     bool
}

// Runner executes builds.
type Runner struct {
	exec Executor
	opts Options
}

// NewRunner creates a Runner. A nil executor means real processes.
func NewRunner(exec Executor, opts Options) *Runner {
	if exec == nil {
		exec = ExecExecutor{}
	}
	return &Runner{exec: exec, opts: opts}
}

// EngineArgs returns the engine's command-line arguments for source file name.
func (r *Runner) EngineArgs(name string) []string {
	args := make([]string, 0, 4)
	if r.opts.ShellEscape {
		args = append(args, "-shell-escape")
	}
	return append(args, "-halt-on-error", "-interaction=nonstopmode", name)
}

type step struct {
	program string
	kind    PassKind
	args    []string
}

// plan lists the invocations Build will perform for src.
func (r *Runner) plan(src project.Source, choice compiler.Choice, withBibliography bool) []step {
	engine := step{program: choice.Engine, kind: PassEngine, args: r.EngineArgs(src.Name)}
	if !withBibliography {
		return []step{engine}
	}
	bib := step{program: choice.Bibliography, kind: PassBibliography, args: []string{src.Base}}
	return []step{engine, bib, engine, engine}
}

// Build runs the sequence for src with the resolved compiler choice. It returns
// an error only when a process could not be started, timed out, or ctx ended.
func (r *Runner) Build(ctx context.Context, src project.Source, choice compiler.Choice) (*Outcome, error) {
	choice = choice.WithDefaults()
	withBib, err := project.HasBibliography(src.Dir)
	if err != nil {
		return nil, tberrors.InternalError("cannot inspect project folder", err)
	}

	outcome := &Outcome{}
	for i, s := range r.plan(src, choice, withBib) {
		pass, err := r.runStep(ctx, src, s)
		if err != nil {
			return outcome, err
		}
		outcome.Passes = append(outcome.Passes, pass)
		if pass.ExitCode != 0 {
			outcome.CompilerErrors = true
		}
		observability.DebugContext(ctx, "Compiler pass finished",
			logfields.Engine(pass.Program),
			logfields.Pass(i+1),
			logfields.ExitCode(pass.ExitCode),
			logfields.DurationMS(float64(pass.Duration.Milliseconds())))
	}

	pdfPath := src.Artifact(".pdf")
	if st, err := os.Stat(pdfPath); err == nil && st.Mode().IsRegular() {
		outcome.PDFPresent = true
		outcome.PDF = inspectPDF(pdfPath)
		if outcome.PDF.Err != nil {
			observability.WarnContext(ctx, "Produced PDF failed validation",
				logfields.Path(pdfPath), logfields.Error(outcome.PDF.Err))
		}
	}
	return outcome, nil
}

func (r *Runner) runStep(ctx context.Context, src project.Source, s step) (Pass, error) {
	stdoutSuffix, stderrSuffix := SuffixStdout, SuffixStderr
	if s.kind == PassBibliography {
		stdoutSuffix, stderrSuffix = SuffixBibliographyStdout, SuffixBibliographyStderr
	}
	stdout, err := openTranscript(src.Artifact(stdoutSuffix))
	if err != nil {
		return Pass{}, tberrors.InternalError("cannot open transcript", err)
	}
	defer stdout.Close()
	stderr, err := openTranscript(src.Artifact(stderrSuffix))
	if err != nil {
		return Pass{}, tberrors.InternalError("cannot open transcript", err)
	}
	defer stderr.Close()

	path, args := r.command(s)
	res, err := r.exec.Run(ctx, Invocation{
		Program: s.program,
		Path:    path,
		Args:    args,
		Dir:     src.Dir,
		Stdout:  stdout,
		Stderr:  stderr,
		Timeout: r.opts.Timeout,
	})
	pass := Pass{Program: s.program, Kind: s.kind, ExitCode: res.ExitCode, Duration: res.Duration}
	switch {
	case err == nil:
	case errors.Is(err, ErrTimeout):
		writeTrailer(stderr, "texbot: %s killed after %s\n", s.program, r.opts.Timeout)
		return pass, tberrors.BuildTimedOut(s.program, r.opts.Timeout)
	case ctx.Err() != nil:
		return pass, ctx.Err()
	default:
		return pass, tberrors.BuildFailed(s.program, err)
	}
	if res.ExitCode != 0 {
		writeTrailer(stderr, "texbot: %s exited with status %d\n", s.program, res.ExitCode)
	}
	return pass, nil
}

// command resolves the executable and prepends the sandbox wrapper, if any.
func (r *Runner) command(s step) (string, []string) {
	bin := s.program
	if mapped, ok := r.opts.Binaries[s.program]; ok && mapped != "" {
		bin = mapped
	}
	if len(r.opts.Sandbox) == 0 {
		return bin, s.args
	}
	args := make([]string, 0, len(r.opts.Sandbox)+len(s.args))
	args = append(args, r.opts.Sandbox[1:]...)
	args = append(args, bin)
	args = append(args, s.args...)
	return r.opts.Sandbox[0], args
}

func openTranscript(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
}

func writeTrailer(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
