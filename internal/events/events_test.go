package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/texbot/internal/eventstore"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return &jetstream.PubAck{Stream: "TEXBOT", Sequence: uint64(len(f.msgs))}, nil
}

type failingEmitter struct{}

func (failingEmitter) Emit(context.Context, string, eventstore.Typed) error {
	return errors.New("boom")
}

func TestStoreEmitterAppends(t *testing.T) {
	store, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	em := NewStoreEmitter(store)
	require.NoError(t, em.Emit(t.Context(), "req-1", eventstore.RequestReceived{ChatID: 1, FileName: "a.zip"}))

	events, err := store.GetByRequestID(t.Context(), "req-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, eventstore.TypeRequestReceived, events[0].Type())
}

func TestNATSEmitterPublishesEnvelope(t *testing.T) {
	fp := &fakePublisher{}
	em := &NATSEmitter{js: fp, subject: "texbot.requests", timeout: time.Second}

	err := em.Emit(t.Context(), "req-9", eventstore.RequestFailed{Outcome: "locate_error", Stage: "locate"})
	require.NoError(t, err)
	require.Len(t, fp.msgs, 1)
	assert.Equal(t, "texbot.requests.failed", fp.msgs[0].subject)

	var env Envelope
	require.NoError(t, json.Unmarshal(fp.msgs[0].data, &env))
	assert.Equal(t, "req-9", env.RequestID)
	assert.Equal(t, eventstore.TypeRequestFailed, env.Type)

	var payload eventstore.RequestFailed
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "locate", payload.Stage)
}

func TestNATSEmitterPublishFailure(t *testing.T) {
	em := &NATSEmitter{js: &fakePublisher{err: errors.New("no responders")}, subject: "s", timeout: time.Second}
	err := em.Emit(t.Context(), "req", eventstore.RequestReceived{})
	assert.Error(t, err)
}

func TestMultiContinuesAfterFailure(t *testing.T) {
	fp := &fakePublisher{}
	m := Multi{failingEmitter{}, nil, &NATSEmitter{js: fp, subject: "s", timeout: time.Second}, NoopEmitter{}}

	err := m.Emit(t.Context(), "req", eventstore.RequestCompleted{Project: "paper"})
	assert.Error(t, err)
	assert.Len(t, fp.msgs, 1, "later emitters still receive the event")
}
