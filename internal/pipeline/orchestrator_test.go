package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/texbot/internal/eventstore"
	"git.home.luguber.info/inful/texbot/internal/latex"
)

// fakeExecutor simulates a TeX installation: engines write <base>.pdf and a log.
type fakeExecutor struct {
	mu    sync.Mutex
	calls []string
	run   func(ctx context.Context, inv latex.Invocation) (latex.ProcessResult, error)
}

func (f *fakeExecutor) Run(ctx context.Context, inv latex.Invocation) (latex.ProcessResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, inv.Program)
	f.mu.Unlock()
	if f.run != nil {
		return f.run(ctx, inv)
	}
	fmt.Fprintf(inv.Stdout, "This is %s\n", inv.Program)
	if inv.Program != "bibtex" {
		name := inv.Args[len(inv.Args)-1]
		base := strings.TrimSuffix(name, ".tex")
		for _, ext := range []string{".pdf", ".log"} {
			if err := os.WriteFile(filepath.Join(inv.Dir, base+ext), []byte(ext), 0o600); err != nil {
				return latex.ProcessResult{}, err
			}
		}
	}
	return latex.ProcessResult{Duration: time.Millisecond}, nil
}

type document struct {
	caption string
	entries []string
}

// fakeResponder records replies. Documents are opened on delivery since the
// workspace is gone afterwards.
type fakeResponder struct {
	actions []ChatAction
	texts   []string
	docs    []document
	sendErr error
}

func (r *fakeResponder) ChatAction(_ context.Context, a ChatAction) error {
	r.actions = append(r.actions, a)
	return nil
}

func (r *fakeResponder) SendText(_ context.Context, text string) error {
	r.texts = append(r.texts, text)
	return nil
}

func (r *fakeResponder) SendDocument(_ context.Context, path, caption string) error {
	if r.sendErr != nil {
		return r.sendErr
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer zr.Close()
	doc := document{caption: caption}
	for _, f := range zr.File {
		doc.entries = append(doc.entries, f.Name)
	}
	r.docs = append(r.docs, doc)
	return nil
}

type recordingEmitter struct {
	mu    sync.Mutex
	types []string
}

func (e *recordingEmitter) Emit(_ context.Context, _ string, payload eventstore.Typed) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, payload.EventType())
	return nil
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type harness struct {
	workDir string
	exec    *fakeExecutor
	emitter *recordingEmitter
	orch    *Orchestrator
}

func newHarness(t *testing.T, requestTimeout time.Duration) *harness {
	t.Helper()
	h := &harness{workDir: t.TempDir(), exec: &fakeExecutor{}, emitter: &recordingEmitter{}}
	runner := latex.NewRunner(h.exec, latex.Options{Timeout: time.Minute, ShellEscape: true})
	h.orch = NewOrchestrator(Options{WorkDir: h.workDir, RequestTimeout: requestTimeout}, runner, WithEmitter(h.emitter))
	return h
}

func (h *harness) assertWorkspaceRemoved(t *testing.T) {
	t.Helper()
	left, err := os.ReadDir(h.workDir)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestHandleSinglePassProject(t *testing.T) {
	h := newHarness(t, time.Minute)
	r := &fakeResponder{}

	out := h.orch.Handle(context.Background(), Request{
		ID:       "req-1",
		FileName: "paper.zip",
		Data:     zipOf(t, map[string]string{"main.tex": `\documentclass{article}`}),
	}, r)

	require.True(t, out.Succeeded(), "outcome %s: %v", out.Kind, out.Err)
	assert.Equal(t, []string{"pdflatex"}, h.exec.calls)
	assert.Equal(t, []ChatAction{ActionTyping, ActionUploadDocument}, r.actions)
	assert.Empty(t, r.texts)
	require.Len(t, r.docs, 1)
	assert.Subset(t, r.docs[0].entries, []string{
		"paper/main.tex", "paper/main.pdf", "paper/main.stdout", "paper/main.stderr",
	})
	for _, e := range r.docs[0].entries {
		assert.True(t, strings.HasPrefix(e, "paper/"), e)
	}
	assert.Equal(t, "paper", out.Project)
	assert.Equal(t, []string{eventstore.TypeRequestReceived, eventstore.TypeRequestCompleted}, h.emitter.types)
	h.assertWorkspaceRemoved(t)
}

func TestHandleProjectWithBibliography(t *testing.T) {
	h := newHarness(t, time.Minute)
	r := &fakeResponder{}

	out := h.orch.Handle(context.Background(), Request{
		ID:       "req-2",
		FileName: "thesis.zip",
		Data: zipOf(t, map[string]string{
			"thesis/thesis.tex": `\bibliography{refs}`,
			"thesis/refs.bib":   "@book{x}",
		}),
	}, r)

	require.True(t, out.Succeeded(), "outcome %s: %v", out.Kind, out.Err)
	assert.Equal(t, []string{"pdflatex", "bibtex", "pdflatex", "pdflatex"}, h.exec.calls)
	require.Len(t, out.Passes, 4)
	require.Len(t, r.docs, 1)
	assert.Subset(t, r.docs[0].entries, []string{
		"thesis/thesis.stdout", "thesis/thesis.stderr",
		"thesis/thesis.blg.stdout", "thesis/thesis.blg.stderr",
		"thesis/thesis.pdf",
	})
}

func TestHandleAmbiguousProject(t *testing.T) {
	h := newHarness(t, time.Minute)
	r := &fakeResponder{}

	out := h.orch.Handle(context.Background(), Request{
		ID:       "req-3",
		FileName: "two.zip",
		Data:     zipOf(t, map[string]string{"a.tex": "", "b.tex": ""}),
	}, r)

	assert.Equal(t, OutcomeLocateError, out.Kind)
	assert.Equal(t, StageLocate, out.Stage)
	assert.Empty(t, h.exec.calls)
	assert.Empty(t, r.docs)
	require.Len(t, r.texts, 1)
	assert.Equal(t, "In the archive, I see 2 TeX files. I do not know what to compile.", r.texts[0])
	assert.Equal(t, []string{eventstore.TypeRequestReceived, eventstore.TypeRequestFailed}, h.emitter.types)
	h.assertWorkspaceRemoved(t)
}

func TestHandleCorruptArchive(t *testing.T) {
	h := newHarness(t, time.Minute)
	r := &fakeResponder{}

	out := h.orch.Handle(context.Background(), Request{ID: "req-4", FileName: "junk.zip", Data: []byte("not a zip")}, r)

	assert.Equal(t, OutcomeExtractionError, out.Kind)
	require.Len(t, r.texts, 1)
	assert.True(t, strings.HasPrefix(r.texts[0], "Cannot unpack the archive: "), r.texts[0])
	h.assertWorkspaceRemoved(t)
}

func TestHandleConflictingEntriesKeepWorkspaceHidden(t *testing.T) {
	h := newHarness(t, time.Minute)
	r := &fakeResponder{}
	data := zipOf(t, map[string]string{"x": "file", "x/main.tex": "nested"})

	out := h.orch.Handle(context.Background(), Request{ID: "req-4b", FileName: "paper.zip", Data: data}, r)

	assert.Equal(t, OutcomeExtractionError, out.Kind)
	assert.Equal(t, StageExtract, out.Stage)
	require.Len(t, r.texts, 1)
	assert.True(t, strings.HasPrefix(r.texts[0], "Cannot unpack the archive: "), r.texts[0])
	assert.NotContains(t, r.texts[0], h.workDir)
	assert.NotContains(t, r.texts[0], os.TempDir())
	assert.Empty(t, r.docs)
	h.assertWorkspaceRemoved(t)
}

func TestHandleCompilerTimeout(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.exec.run = func(context.Context, latex.Invocation) (latex.ProcessResult, error) {
		return latex.ProcessResult{ExitCode: -1}, latex.ErrTimeout
	}
	r := &fakeResponder{}

	out := h.orch.Handle(context.Background(), Request{
		ID:       "req-5",
		FileName: "slow.zip",
		Data:     zipOf(t, map[string]string{"main.tex": ""}),
	}, r)

	assert.Equal(t, OutcomeBuildTimeout, out.Kind)
	assert.Empty(t, r.docs)
	require.Len(t, r.texts, 1)
	assert.Contains(t, r.texts[0], "build timed out")
	h.assertWorkspaceRemoved(t)
}

func TestHandleRequestDeadline(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)
	h.exec.run = func(ctx context.Context, _ latex.Invocation) (latex.ProcessResult, error) {
		<-ctx.Done()
		return latex.ProcessResult{ExitCode: -1}, ctx.Err()
	}
	r := &fakeResponder{}

	out := h.orch.Handle(context.Background(), Request{
		ID:       "req-6",
		FileName: "stuck.zip",
		Data:     zipOf(t, map[string]string{"main.tex": ""}),
	}, r)

	assert.Equal(t, OutcomeBuildTimeout, out.Kind)
	assert.Equal(t, []string{TextRequestTimedOut(50 * time.Millisecond)}, r.texts)
	h.assertWorkspaceRemoved(t)
}

func TestHandleCanceled(t *testing.T) {
	h := newHarness(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	h.exec.run = func(context.Context, latex.Invocation) (latex.ProcessResult, error) {
		cancel()
		return latex.ProcessResult{ExitCode: -1}, context.Canceled
	}
	r := &fakeResponder{}

	out := h.orch.Handle(ctx, Request{
		ID:       "req-7",
		FileName: "paper.zip",
		Data:     zipOf(t, map[string]string{"main.tex": ""}),
	}, r)

	assert.Equal(t, OutcomeCanceled, out.Kind)
	assert.Equal(t, []string{TextShuttingDown}, r.texts)
	h.assertWorkspaceRemoved(t)
}

func TestHandleCompilerErrorsStillDeliver(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.exec.run = func(_ context.Context, inv latex.Invocation) (latex.ProcessResult, error) {
		fmt.Fprintln(inv.Stdout, "! Undefined control sequence.")
		return latex.ProcessResult{ExitCode: 1}, nil
	}
	r := &fakeResponder{}

	out := h.orch.Handle(context.Background(), Request{
		ID:       "req-8",
		FileName: "broken.zip",
		Data:     zipOf(t, map[string]string{"main.tex": `\foo`}),
	}, r)

	require.True(t, out.Succeeded())
	assert.True(t, out.CompilerErrors)
	assert.False(t, out.PDFProduced)
	require.Len(t, r.docs, 1)
	assert.Equal(t, TextNoPDF, r.docs[0].caption)
	assert.Contains(t, r.docs[0].entries, "broken/main.stderr")
}

func TestHandleDeliveryFailure(t *testing.T) {
	h := newHarness(t, time.Minute)
	r := &fakeResponder{sendErr: assert.AnError}

	out := h.orch.Handle(context.Background(), Request{
		ID:       "req-9",
		FileName: "paper.zip",
		Data:     zipOf(t, map[string]string{"main.tex": ""}),
	}, r)

	assert.False(t, out.Succeeded())
	assert.Equal(t, StageDeliver, out.Stage)
	h.assertWorkspaceRemoved(t)
}

func TestCaption(t *testing.T) {
	tests := []struct {
		name  string
		build *latex.Outcome
		want  string
	}{
		{"no build", nil, TextNoPDF},
		{"no pdf", &latex.Outcome{CompilerErrors: true}, TextNoPDF},
		{"one page", &latex.Outcome{PDFPresent: true, PDF: latex.PDFInfo{Valid: true, Pages: 1}}, "main.pdf, 1 page"},
		{"pages", &latex.Outcome{PDFPresent: true, PDF: latex.PDFInfo{Valid: true, Pages: 12}}, "main.pdf, 12 pages"},
		{"invalid", &latex.Outcome{PDFPresent: true}, "main.pdf (could not be validated)"},
		{
			"errors",
			&latex.Outcome{PDFPresent: true, CompilerErrors: true, PDF: latex.PDFInfo{Valid: true, Pages: 3}},
			"main.pdf, 3 pages\n" + TextCompilerErrors,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Caption("main", tt.build))
		})
	}
}
