package telegram

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	tberrors "git.home.luguber.info/inful/texbot/internal/errors"
	"git.home.luguber.info/inful/texbot/internal/logfields"
	"git.home.luguber.info/inful/texbot/internal/metrics"
	"git.home.luguber.info/inful/texbot/internal/observability"
	"git.home.luguber.info/inful/texbot/internal/pipeline"
	"git.home.luguber.info/inful/texbot/internal/retry"
)

// chatResponder delivers replies to one chat, answering the triggering message.
type chatResponder struct {
	api      BotAPI
	chatID   int64
	replyTo  int
	policy   retry.Policy
	recorder metrics.Recorder
}

func (r *chatResponder) ChatAction(ctx context.Context, action pipeline.ChatAction) error {
	return r.call(ctx, "sendChatAction", func() error {
		_, err := r.api.Request(tgbotapi.NewChatAction(r.chatID, string(action)))
		return err
	})
}

func (r *chatResponder) SendText(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(r.chatID, text)
	msg.ReplyToMessageID = r.replyTo
	return r.call(ctx, "sendMessage", func() error {
		_, err := r.api.Send(msg)
		return err
	})
}

func (r *chatResponder) SendDocument(ctx context.Context, path, caption string) error {
	doc := tgbotapi.NewDocument(r.chatID, tgbotapi.FilePath(path))
	doc.Caption = caption
	doc.ReplyToMessageID = r.replyTo
	return r.call(ctx, "sendDocument", func() error {
		_, err := r.api.Send(doc)
		return err
	})
}

// call runs one Bot API call under the retry policy.
func (r *chatResponder) call(ctx context.Context, op string, fn func() error) error {
	return retry.Do(ctx, r.policy, func(context.Context) error {
		return apiError(op, fn())
	}, func(attempt int, delay time.Duration, err error) {
		r.recorder.IncTransportRetry(op)
		observability.WarnContext(ctx, "Bot API call failed, retrying",
			slog.String("operation", op),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			logfields.Error(err))
	})
}

// apiError wraps a Bot API failure as a transport error. Client errors other
// than rate limiting will not succeed on retry.
func apiError(op string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := tberrors.TransportError(op, err)
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		wrapped.WithContext("code", apiErr.Code)
		if apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
			wrapped.Retryable = false
		}
	}
	return wrapped
}
