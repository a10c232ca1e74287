package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/texbot/internal/archive"
	"git.home.luguber.info/inful/texbot/internal/compiler"
	tberrors "git.home.luguber.info/inful/texbot/internal/errors"
	"git.home.luguber.info/inful/texbot/internal/events"
	"git.home.luguber.info/inful/texbot/internal/eventstore"
	"git.home.luguber.info/inful/texbot/internal/latex"
	"git.home.luguber.info/inful/texbot/internal/logfields"
	"git.home.luguber.info/inful/texbot/internal/metrics"
	"git.home.luguber.info/inful/texbot/internal/observability"
	"git.home.luguber.info/inful/texbot/internal/project"
	"git.home.luguber.info/inful/texbot/internal/workspace"
)

// replyTimeout bounds failure replies sent after the request context ended.
const replyTimeout = 30 * time.Second

// Builder compiles a located project. *latex.Runner implements it.
type Builder interface {
	Build(ctx context.Context, src project.Source, choice compiler.Choice) (*latex.Outcome, error)
}

// Options are the request-independent pipeline settings.
type Options struct {
	WorkDir        string
	Limits         archive.Limits
	RequestTimeout time.Duration
	Defaults       compiler.Choice
}

// Orchestrator runs requests through the stage sequence.
type Orchestrator struct {
	opts     Options
	builder  Builder
	recorder metrics.Recorder
	emitter  events.Emitter
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithEmitter sets the lifecycle event emitter.
func WithEmitter(e events.Emitter) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.emitter = e
		}
	}
}

// NewOrchestrator creates an Orchestrator building with builder.
func NewOrchestrator(opts Options, builder Builder, options ...Option) *Orchestrator {
	if opts.Limits == (archive.Limits{}) {
		opts.Limits = archive.DefaultLimits()
	}
	opts.Defaults = opts.Defaults.WithDefaults()
	o := &Orchestrator{
		opts:     opts,
		builder:  builder,
		recorder: metrics.NoopRecorder{},
		emitter:  events.NoopEmitter{},
		now:      time.Now,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// Handle processes one request and always replies through r: a document on
// success, a text otherwise. The request workspace is gone when Handle returns.
func (o *Orchestrator) Handle(ctx context.Context, req Request, r Responder) *Outcome {
	start := o.now()
	ctx = observability.WithRequestID(ctx, req.ID)
	ctx = observability.WithChatID(ctx, req.ChatID)
	if o.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RequestTimeout)
		defer cancel()
	}

	out := &Outcome{RequestID: req.ID, Stages: make(map[string]time.Duration)}
	o.emit(ctx, req.ID, eventstore.RequestReceived{
		ChatID:   req.ChatID,
		UserID:   req.UserID,
		FileName: req.FileName,
		Bytes:    len(req.Data),
	})
	observability.InfoContext(ctx, "Processing archive",
		logfields.File(req.FileName), logfields.Bytes(int64(len(req.Data))))

	if err := r.ChatAction(ctx, ActionTyping); err != nil {
		observability.WarnContext(ctx, "Chat action failed", logfields.Error(err))
	}

	ws := workspace.NewManager(o.opts.WorkDir)
	defer func() {
		if err := ws.Cleanup(); err != nil {
			observability.ErrorContext(ctx, "Workspace cleanup failed", logfields.Error(err))
		}
	}()

	err := o.run(ctx, req, r, ws, out)
	out.Duration = o.now().Sub(start)
	if err != nil {
		o.fail(ctx, r, out, err)
	} else {
		o.succeed(ctx, out)
	}
	o.recorder.ObserveRequestDuration(out.Duration)
	o.recorder.IncRequestOutcome(string(out.Kind))
	return out
}

func (o *Orchestrator) run(ctx context.Context, req Request, r Responder, ws *workspace.Manager, out *Outcome) error {
	if err := ws.Create(); err != nil {
		out.Stage = StageExtract
		return tberrors.WorkspaceError("create", err)
	}
	root, err := ws.CreateSubdir("src")
	if err != nil {
		out.Stage = StageExtract
		return tberrors.WorkspaceError("create", err)
	}
	outDir, err := ws.CreateSubdir("out")
	if err != nil {
		out.Stage = StageExtract
		return tberrors.WorkspaceError("create", err)
	}
	name := archive.ProjectName(req.FileName)
	out.Project = name
	ctx = observability.WithProject(ctx, name)

	if err := o.stage(ctx, out, StageExtract, func(ctx context.Context) error {
		return archive.Extract(ctx, req.Data, root, name, o.opts.Limits)
	}); err != nil {
		return err
	}

	var src project.Source
	if err := o.stage(ctx, out, StageLocate, func(context.Context) error {
		var err error
		src, err = project.Locate(root)
		return err
	}); err != nil {
		return err
	}

	_ = o.stage(ctx, out, StageResolve, func(context.Context) error {
		out.Choice = compiler.Resolve(src.Dir, o.opts.Defaults)
		return nil
	})
	observability.DebugContext(ctx, "Compiler resolved",
		logfields.Engine(out.Choice.Engine), slog.String("bibliography", out.Choice.Bibliography))

	var build *latex.Outcome
	err = o.stage(ctx, out, StageBuild, func(ctx context.Context) error {
		var err error
		build, err = o.builder.Build(ctx, src, out.Choice)
		return err
	})
	if build != nil {
		out.Passes = build.Passes
		out.CompilerErrors = build.CompilerErrors
		out.PDFProduced = build.PDFPresent
		out.Pages = build.PDF.Pages
		for _, p := range build.Passes {
			o.recorder.ObserveCompilerPass(p.Program, p.ExitCode, p.Duration)
		}
	}
	if err != nil {
		return err
	}

	var archivePath string
	if err := o.stage(ctx, out, StagePackage, func(ctx context.Context) error {
		var err error
		archivePath, err = archive.Pack(ctx, src.Dir, filepath.Join(outDir, name+".zip"))
		return err
	}); err != nil {
		return err
	}
	if st, err := os.Stat(archivePath); err == nil {
		out.ArchiveBytes = st.Size()
	}

	out.Caption = Caption(src.Base, build)
	return o.stage(ctx, out, StageDeliver, func(ctx context.Context) error {
		if err := r.ChatAction(ctx, ActionUploadDocument); err != nil {
			observability.WarnContext(ctx, "Chat action failed", logfields.Error(err))
		}
		return r.SendDocument(ctx, archivePath, out.Caption)
	})
}

// stage runs fn with timing, metrics and the stage name in the log context.
func (o *Orchestrator) stage(ctx context.Context, out *Outcome, name string, fn func(context.Context) error) error {
	ctx = observability.WithStage(ctx, name)
	start := o.now()
	err := fn(ctx)
	d := o.now().Sub(start)
	out.Stages[name] = d
	o.recorder.ObserveStageDuration(name, d)

	switch {
	case err == nil:
		o.recorder.IncStageResult(name, metrics.ResultSuccess)
	case errors.Is(err, context.Canceled):
		o.recorder.IncStageResult(name, metrics.ResultCanceled)
	case tberrors.GetCategory(err) == tberrors.CategoryProject || tberrors.GetCategory(err) == tberrors.CategoryArchive:
		o.recorder.IncStageResult(name, metrics.ResultWarning)
	default:
		o.recorder.IncStageResult(name, metrics.ResultFailed)
	}
	if err != nil {
		out.Stage = name
	}
	return err
}

func (o *Orchestrator) succeed(ctx context.Context, out *Outcome) {
	out.Kind = OutcomeSuccess
	passes := make([]eventstore.PassRecord, 0, len(out.Passes))
	for _, p := range out.Passes {
		passes = append(passes, eventstore.PassRecord{Program: p.Program, ExitCode: p.ExitCode, Millis: p.Duration.Milliseconds()})
	}
	o.emit(ctx, out.RequestID, eventstore.RequestCompleted{
		Project:        out.Project,
		Engine:         out.Choice.Engine,
		Bibliography:   out.Choice.Bibliography,
		Pages:          out.Pages,
		CompilerErrors: out.CompilerErrors,
		ArchiveBytes:   out.ArchiveBytes,
		Passes:         passes,
		DurationMS:     out.Duration.Milliseconds(),
	})
	observability.InfoContext(ctx, "Archive delivered",
		logfields.Project(out.Project),
		slog.Int("pages", out.Pages),
		slog.Bool("compiler_errors", out.CompilerErrors),
		logfields.DurationMS(float64(out.Duration.Milliseconds())))
}

// fail classifies err, replies with its user text and records the failure.
func (o *Orchestrator) fail(ctx context.Context, r Responder, out *Outcome, err error) {
	out.Err = err
	out.Kind = classify(err)
	switch {
	case out.Kind == OutcomeCanceled:
		out.UserText = TextShuttingDown
	case errors.Is(err, context.DeadlineExceeded):
		out.UserText = TextRequestTimedOut(o.opts.RequestTimeout)
	default:
		out.UserText = tberrors.UserMessage(err)
	}

	attrs := []slog.Attr{logfields.Stage(out.Stage), logfields.Outcome(string(out.Kind)), logfields.Error(err)}
	if tberrors.GetCategory(err) == tberrors.CategoryInternal && out.Kind == OutcomeInternalError {
		observability.ErrorContext(ctx, "Request failed", attrs...)
	} else {
		observability.WarnContext(ctx, "Request failed", attrs...)
	}

	// The request context may be spent; replies and records still go out.
	replyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replyTimeout)
	defer cancel()
	if out.Kind != OutcomeDeliveryError {
		if sendErr := r.SendText(replyCtx, out.UserText); sendErr != nil {
			observability.WarnContext(ctx, "Failure reply not delivered", logfields.Error(sendErr))
		}
	}
	o.emit(replyCtx, out.RequestID, eventstore.RequestFailed{
		Outcome:    string(out.Kind),
		Stage:      out.Stage,
		Category:   string(tberrors.GetCategory(err)),
		Message:    err.Error(),
		DurationMS: out.Duration.Milliseconds(),
	})
}

func classify(err error) OutcomeKind {
	switch {
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeBuildTimeout
	}
	switch tberrors.GetCategory(err) {
	case tberrors.CategoryArchive:
		return OutcomeExtractionError
	case tberrors.CategoryProject:
		return OutcomeLocateError
	case tberrors.CategoryTimeout:
		return OutcomeBuildTimeout
	case tberrors.CategoryBuild:
		return OutcomeBuildError
	case tberrors.CategoryPackaging:
		return OutcomePackagingError
	case tberrors.CategoryTransport:
		return OutcomeDeliveryError
	default:
		return OutcomeInternalError
	}
}

func (o *Orchestrator) emit(ctx context.Context, requestID string, payload eventstore.Typed) {
	if err := o.emitter.Emit(context.WithoutCancel(ctx), requestID, payload); err != nil {
		observability.WarnContext(ctx, "Lifecycle event not recorded",
			slog.String("event_type", payload.EventType()), logfields.Error(err))
	}
}
