package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/texbot/internal/archive"
	"git.home.luguber.info/inful/texbot/internal/compiler"
	"git.home.luguber.info/inful/texbot/internal/config"
	tberrors "git.home.luguber.info/inful/texbot/internal/errors"
	"git.home.luguber.info/inful/texbot/internal/latex"
	"git.home.luguber.info/inful/texbot/internal/logfields"
	"git.home.luguber.info/inful/texbot/internal/pipeline"
)

// watchDebounce collapses the burst of events an archive rewrite produces.
const watchDebounce = 500 * time.Millisecond

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Archive string `arg:"" help:"ZIP archive holding the LaTeX project" type:"existingfile"`
	Output  string `short:"o" help:"Result archive path (default: <project>-texbot.zip next to the input)" type:"path"`
	Latex   string `help:"LaTeX engine, overriding the configuration"`
	Bibtex  string `help:"Bibliography program, overriding the configuration"`
	Watch   bool   `short:"w" help:"Rebuild whenever the archive is rewritten"`
}

func (b *BuildCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config, true)
	if err != nil {
		return err
	}
	if err := applyCompilerFlags(cfg, b.Latex, b.Bibtex); err != nil {
		return err
	}
	output := b.Output
	if output == "" {
		output = DefaultOutputPath(b.Archive)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	_, err = RunBuild(ctx, cfg, b.Archive, output, nil, os.Stdout)
	if !b.Watch {
		return err
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, tberrors.UserMessage(err))
	}

	fmt.Printf("Watching %s for changes (Ctrl-C to stop)\n", b.Archive)
	return watchFile(ctx, b.Archive, watchDebounce, func() {
		if _, err := RunBuild(ctx, cfg, b.Archive, output, nil, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, tberrors.UserMessage(err))
		}
	})
}

// DefaultOutputPath places the result next to the input as <project>-texbot.zip.
func DefaultOutputPath(archivePath string) string {
	return filepath.Join(filepath.Dir(archivePath), archive.ProjectName(filepath.Base(archivePath))+"-texbot.zip")
}

func applyCompilerFlags(cfg *config.Config, latexEngine, bibtex string) error {
	if latexEngine != "" {
		if !compiler.IsAllowedEngine(latexEngine) {
			return tberrors.ValidationFailed("--latex",
				fmt.Sprintf("%q is not one of %s", latexEngine, strings.Join(compiler.Engines(), ", ")))
		}
		cfg.Compiler.Latex = strings.ToLower(strings.TrimSpace(latexEngine))
	}
	if bibtex != "" {
		if !compiler.IsAllowedBibliography(bibtex) {
			return tberrors.ValidationFailed("--bibtex",
				fmt.Sprintf("%q is not one of %s", bibtex, strings.Join(compiler.Bibliographies(), ", ")))
		}
		cfg.Compiler.Bibtex = strings.ToLower(strings.TrimSpace(bibtex))
	}
	return nil
}

// RunBuild runs one archive through the pipeline and writes the result archive
// to output. A nil exec runs real compiler processes.
func RunBuild(ctx context.Context, cfg *config.Config, archivePath, output string, exec latex.Executor, w io.Writer) (*pipeline.Outcome, error) {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return nil, tberrors.ValidationFailed("archive", err.Error())
	}

	resp := &fileResponder{output: output}
	out := newOrchestrator(cfg, exec).Handle(ctx, pipeline.Request{
		ID:         uuid.NewString(),
		FileName:   filepath.Base(archivePath),
		Data:       data,
		ReceivedAt: time.Now(),
	}, resp)

	if !out.Succeeded() {
		return out, buildError(out)
	}
	fmt.Fprintf(w, "Wrote %s\n", output)
	for _, line := range strings.Split(out.Caption, "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
	return out, nil
}

// buildError carries the text a chat user would have seen.
func buildError(out *pipeline.Outcome) error {
	if tbe, ok := tberrors.As(out.Err); ok && tbe.UserMessage == out.UserText {
		return tbe
	}
	category := tberrors.GetCategory(out.Err)
	if out.Kind == pipeline.OutcomeBuildTimeout {
		category = tberrors.CategoryTimeout
	}
	return tberrors.Wrap(out.Err, category, tberrors.SeverityError, "build request failed").
		WithUserMessage(out.UserText)
}

// fileResponder stands in for a chat: the result archive is copied to output.
type fileResponder struct {
	output string
	texts  []string
}

func (r *fileResponder) ChatAction(ctx context.Context, action pipeline.ChatAction) error {
	slog.DebugContext(ctx, "Status", slog.String("action", string(action)))
	return nil
}

func (r *fileResponder) SendText(_ context.Context, text string) error {
	r.texts = append(r.texts, text)
	return nil
}

func (r *fileResponder) SendDocument(_ context.Context, path, _ string) error {
	if err := copyFile(path, r.output); err != nil {
		return tberrors.WorkspaceError("write result", err).WithContext("path", r.output)
	}
	slog.Debug("Result archive written", logfields.Path(r.output))
	return nil
}

// copyFile writes src to dst through a temporary file in dst's directory.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".texbot-*.zip")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
