package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/texbot/internal/config"
	tberrors "git.home.luguber.info/inful/texbot/internal/errors"
	"git.home.luguber.info/inful/texbot/internal/eventstore"
)

// Envelope is the JSON body of every published message.
type Envelope struct {
	RequestID string          `json:"request_id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSEmitter publishes lifecycle events to JetStream under <subject>.<kind>,
// e.g. texbot.requests.completed.
type NATSEmitter struct {
	conn    *nats.Conn
	js      publisher
	subject string
	timeout time.Duration
}

// NewNATSEmitter connects to cfg.NATSURL and makes sure the stream exists.
func NewNATSEmitter(ctx context.Context, cfg config.EventsConfig, retention time.Duration) (*NATSEmitter, error) {
	conn, err := nats.Connect(cfg.NATSURL, nats.Name("texbot"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, tberrors.Wrap(err, tberrors.CategoryConfig, tberrors.SeverityFatal, "failed to connect to NATS").
			WithContext("url", cfg.NATSURL)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(setupCtx, jetstream.StreamConfig{
		Name:        cfg.Stream,
		Description: "texbot request lifecycle events",
		Subjects:    []string{cfg.Subject + ".>"},
		MaxAge:      retention,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create stream %s: %w", cfg.Stream, err)
	}

	slog.Info("NATS event publishing enabled",
		"url", cfg.NATSURL,
		"subject", cfg.Subject,
		"stream", cfg.Stream)

	return &NATSEmitter{conn: conn, js: js, subject: cfg.Subject, timeout: 5 * time.Second}, nil
}

// Subject returns the subject an event type is published on.
func (e *NATSEmitter) Subject(eventType string) string {
	return e.subject + "." + strings.TrimPrefix(eventType, "request.")
}

func (e *NATSEmitter) Emit(ctx context.Context, requestID string, payload eventstore.Typed) error {
	ev, err := eventstore.NewEvent(requestID, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(Envelope{
		RequestID: requestID,
		Type:      ev.Type(),
		Timestamp: ev.Timestamp().UTC(),
		Payload:   ev.Payload(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if _, err := e.js.Publish(pubCtx, e.Subject(ev.Type()), data, jetstream.WithMsgID(requestID+"/"+ev.Type())); err != nil {
		return tberrors.TransportError("nats publish", err)
	}
	return nil
}

// Close drains the connection.
func (e *NATSEmitter) Close() error {
	if e.conn == nil {
		return nil
	}
	return e.conn.Drain()
}
