package eventstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendTyped(t *testing.T, store Store, requestID string, payload Typed) {
	t.Helper()
	ev, err := NewEvent(requestID, payload)
	require.NoError(t, err)
	require.NoError(t, store.Append(t.Context(), requestID, ev.Type(), ev.Payload(), nil))
}

func TestSummarizeCompletedRequest(t *testing.T) {
	store := newTestStore(t)
	appendTyped(t, store, "req-ok", RequestReceived{ChatID: 42, FileName: "paper.zip", Bytes: 1024})
	appendTyped(t, store, "req-ok", RequestCompleted{
		Project: "paper", Engine: "pdflatex", Bibliography: "bibtex", Pages: 3,
		Passes: []PassRecord{{Program: "pdflatex", ExitCode: 0, Millis: 800}}, DurationMS: 900,
	})

	s, err := GetRequest(t.Context(), store, "req-ok")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, statusCompleted, s.Status)
	assert.Equal(t, "success", s.Outcome)
	assert.Equal(t, int64(42), s.ChatID)
	assert.Equal(t, "paper.zip", s.FileName)
	assert.Equal(t, 3, s.Pages)
	assert.Len(t, s.Passes, 1)
	assert.NotNil(t, s.FinishedAt)
}

func TestSummarizeFailedAndRunningRequests(t *testing.T) {
	store := newTestStore(t)
	appendTyped(t, store, "req-bad", RequestReceived{ChatID: 7, FileName: "two.zip"})
	appendTyped(t, store, "req-bad", RequestFailed{Outcome: "locate_error", Stage: "locate", Category: "project", Message: "primary source is ambiguous"})
	appendTyped(t, store, "req-run", RequestReceived{ChatID: 8, FileName: "slow.zip"})

	list, err := ListRequests(t.Context(), store, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "req-run", list[0].RequestID)
	assert.Equal(t, statusRunning, list[0].Status)
	assert.Nil(t, list[0].FinishedAt)

	assert.Equal(t, "req-bad", list[1].RequestID)
	assert.Equal(t, statusFailed, list[1].Status)
	assert.Equal(t, "locate_error", list[1].Outcome)
	assert.Equal(t, "locate", list[1].ErrorStage)
}

func TestGetRequestUnknown(t *testing.T) {
	s, err := GetRequest(t.Context(), newTestStore(t), "missing")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode(&BaseEvent{EventType: "something.else", EventPayload: []byte("{}")})
	assert.Error(t, err)
}
