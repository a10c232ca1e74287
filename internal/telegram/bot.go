package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"git.home.luguber.info/inful/texbot/internal/archive"
	"git.home.luguber.info/inful/texbot/internal/compiler"
	tberrors "git.home.luguber.info/inful/texbot/internal/errors"
	"git.home.luguber.info/inful/texbot/internal/logfields"
	"git.home.luguber.info/inful/texbot/internal/metrics"
	"git.home.luguber.info/inful/texbot/internal/observability"
	"git.home.luguber.info/inful/texbot/internal/pipeline"
	"git.home.luguber.info/inful/texbot/internal/queue"
	"git.home.luguber.info/inful/texbot/internal/retry"
)

// zipMIMETypes are the document MIME types accepted besides a .zip file name.
var zipMIMETypes = []string{"application/zip", "application/x-zip-compressed"}

// dropReplyTimeout bounds the apology sent for jobs dropped at shutdown.
const dropReplyTimeout = 10 * time.Second

// Handler processes one downloaded archive. *pipeline.Orchestrator implements it.
type Handler interface {
	Handle(ctx context.Context, req pipeline.Request, r pipeline.Responder) *pipeline.Outcome
}

// Enqueuer accepts jobs for the worker pool. *queue.Queue implements it.
type Enqueuer interface {
	Enqueue(job *queue.Job) error
}

// Options configure a Bot.
type Options struct {
	AllowedChats     []int64 // empty allows every chat
	MaxDownloadBytes int64
	PollTimeout      time.Duration
	Retry            retry.Policy
	HTTPClient       *http.Client
	Recorder         metrics.Recorder
}

// Bot turns Telegram updates into pipeline jobs.
type Bot struct {
	api     BotAPI
	handler Handler
	queue   Enqueuer
	opts    Options
}

// NewBot creates a Bot.
func NewBot(api BotAPI, handler Handler, q Enqueuer, opts Options) *Bot {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.MaxDownloadBytes <= 0 {
		opts.MaxDownloadBytes = 20 << 20
	}
	if opts.Retry == (retry.Policy{}) {
		opts.Retry = retry.DefaultPolicy()
	}
	return &Bot{api: api, handler: handler, queue: q, opts: opts}
}

// Run long-polls for updates until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(b.opts.PollTimeout.Seconds())
	u.AllowedUpdates = []string{"message"}
	updates := b.api.GetUpdatesChan(u)
	slog.Info("Polling for updates", slog.Duration("poll_timeout", b.opts.PollTimeout))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate answers commands and queues ZIP documents. Messages from chats
// outside the allow-list are ignored.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	ctx = observability.WithChatID(ctx, msg.Chat.ID)
	if len(b.opts.AllowedChats) > 0 && !slices.Contains(b.opts.AllowedChats, msg.Chat.ID) {
		observability.DebugContext(ctx, "Ignoring message from chat outside allow-list")
		return
	}

	r := b.responder(msg)
	switch {
	case msg.IsCommand():
		b.reply(ctx, r, commandReply(msg.Command()))
	case msg.Document != nil:
		b.submit(ctx, msg, r)
	default:
		b.reply(ctx, r, pipeline.TextGreeting)
	}
}

func (b *Bot) submit(ctx context.Context, msg *tgbotapi.Message, r *chatResponder) {
	doc := msg.Document
	if !IsZipDocument(doc.FileName, doc.MimeType) {
		b.reply(ctx, r, pipeline.TextNotAnArchive)
		return
	}
	if int64(doc.FileSize) > b.opts.MaxDownloadBytes {
		b.reply(ctx, r, pipeline.TextTooLarge)
		return
	}

	req := pipeline.Request{
		ID:         uuid.NewString(),
		ChatID:     msg.Chat.ID,
		FileName:   doc.FileName,
		ReceivedAt: msg.Time(),
	}
	if msg.From != nil {
		req.UserID = msg.From.ID
	}
	ctx = observability.WithRequestID(ctx, req.ID)

	job := &queue.Job{
		ID:       req.ID,
		ChatID:   req.ChatID,
		FileName: req.FileName,
		Run: func(jobCtx context.Context) (string, error) {
			jobCtx = observability.WithChatID(observability.WithRequestID(jobCtx, req.ID), req.ChatID)
			data, err := b.download(jobCtx, doc.FileID)
			if err != nil {
				observability.WarnContext(jobCtx, "Archive download failed", logfields.Error(err))
				text := pipeline.TextDownloadFailed
				if errors.Is(err, errTooLarge) {
					text = pipeline.TextTooLarge
				}
				b.reply(context.WithoutCancel(jobCtx), r, text)
				return "download_error", err
			}
			req.Data = data
			out := b.handler.Handle(jobCtx, req, r)
			return string(out.Kind), out.Err
		},
		OnPanic: func(jobCtx context.Context) {
			b.reply(jobCtx, r, tberrors.UserMessage(tberrors.InternalError("request panicked", nil)))
		},
		OnDrop: func() {
			dropCtx, cancel := context.WithTimeout(context.Background(), dropReplyTimeout)
			defer cancel()
			b.reply(dropCtx, r, pipeline.TextShuttingDown)
		},
	}

	switch err := b.queue.Enqueue(job); {
	case err == nil:
		observability.InfoContext(ctx, "Archive queued", logfields.File(doc.FileName), logfields.Bytes(int64(doc.FileSize)))
	case errors.Is(err, queue.ErrQueueFull):
		observability.WarnContext(ctx, "Queue full, rejecting archive", logfields.File(doc.FileName))
		b.reply(ctx, r, pipeline.TextBusy)
	default:
		b.reply(ctx, r, pipeline.TextShuttingDown)
	}
}

func (b *Bot) responder(msg *tgbotapi.Message) *chatResponder {
	return &chatResponder{
		api:      b.api,
		chatID:   msg.Chat.ID,
		replyTo:  msg.MessageID,
		policy:   b.opts.Retry,
		recorder: b.opts.Recorder,
	}
}

func (b *Bot) reply(ctx context.Context, r *chatResponder, text string) {
	if err := r.SendText(ctx, text); err != nil {
		observability.WarnContext(ctx, "Reply not delivered", logfields.Error(err))
	}
}

// IsZipDocument reports whether a document looks like a ZIP archive by name or MIME type.
func IsZipDocument(fileName, mimeType string) bool {
	return archive.IsZipName(fileName) || slices.Contains(zipMIMETypes, strings.ToLower(mimeType))
}

func commandReply(command string) string {
	if command == "start" {
		return pipeline.TextGreeting
	}
	return HelpText()
}

// HelpText describes what the bot accepts and how a project picks its compilers.
func HelpText() string {
	var b strings.Builder
	b.WriteString("Send me a ZIP archive of a LaTeX project with exactly one .tex file at its top level. ")
	b.WriteString("I compile it and send the project folder back as a ZIP with the PDF and the compiler logs.\n\n")
	b.WriteString("When the project has a .bib file I also run the bibliography program and compile twice more.\n\n")
	b.WriteString("To pick the programs, add texbot.yaml to the project:\n")
	b.WriteString("compiler:\n  latex: xetex\n  bibtex: biber\n\n")
	b.WriteString("or texbot.ini:\n[compiler]\nlatex = xetex\nbibtex = biber\n\n")
	fmt.Fprintf(&b, "LaTeX engines: %s.\n", strings.Join(compiler.Engines(), ", "))
	fmt.Fprintf(&b, "Bibliography programs: %s.", strings.Join(compiler.Bibliographies(), ", "))
	return b.String()
}
