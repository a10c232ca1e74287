// Package events fans request lifecycle events out to the SQLite ledger and,
// when configured, a NATS JetStream stream.
package events

import (
	"context"
	"errors"
	"log/slog"

	"git.home.luguber.info/inful/texbot/internal/eventstore"
	"git.home.luguber.info/inful/texbot/internal/logfields"
)

// Emitter records one lifecycle event for a request.
type Emitter interface {
	Emit(ctx context.Context, requestID string, payload eventstore.Typed) error
}

// NoopEmitter drops every event.
type NoopEmitter struct{}

func (NoopEmitter) Emit(context.Context, string, eventstore.Typed) error { return nil }

// StoreEmitter appends events to an event store.
type StoreEmitter struct {
	store eventstore.Store
}

// NewStoreEmitter wraps store.
func NewStoreEmitter(store eventstore.Store) *StoreEmitter {
	return &StoreEmitter{store: store}
}

func (e *StoreEmitter) Emit(ctx context.Context, requestID string, payload eventstore.Typed) error {
	ev, err := eventstore.NewEvent(requestID, payload)
	if err != nil {
		return err
	}
	return e.store.Append(ctx, requestID, ev.Type(), ev.Payload(), nil)
}

// Multi emits to every emitter and joins their errors. Each failure is logged
// but does not stop delivery to the others.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, requestID string, payload eventstore.Typed) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, requestID, payload); err != nil {
			slog.Warn("Event emission failed",
				logfields.RequestID(requestID),
				slog.String("event_type", payload.EventType()),
				logfields.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
