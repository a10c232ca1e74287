package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/texbot/internal/config"
	tberrors "git.home.luguber.info/inful/texbot/internal/errors"
	"git.home.luguber.info/inful/texbot/internal/metrics"
	"git.home.luguber.info/inful/texbot/internal/pipeline"
	"git.home.luguber.info/inful/texbot/internal/queue"
	"git.home.luguber.info/inful/texbot/internal/retry"
)

// fakeAPI records outgoing calls. sendErrs are returned by Send in order.
type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	actions  []string
	sendErrs []error
	fileURL  string
	updates  chan tgbotapi.Update
	stopped  bool
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return f.updates }

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return tgbotapi.Message{}, err
		}
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := c.(tgbotapi.ChatActionConfig); ok {
		f.actions = append(f.actions, a.Action)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFileDirectURL(string) (string, error) { return f.fileURL, nil }

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

type fakeQueue struct {
	jobs []*queue.Job
	err  error
}

func (q *fakeQueue) Enqueue(job *queue.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type fakeHandler struct {
	got []pipeline.Request
}

func (h *fakeHandler) Handle(ctx context.Context, req pipeline.Request, r pipeline.Responder) *pipeline.Outcome {
	h.got = append(h.got, req)
	_ = r.ChatAction(ctx, pipeline.ActionTyping)
	_ = r.SendText(ctx, "handled")
	return &pipeline.Outcome{Kind: pipeline.OutcomeSuccess}
}

var fastRetry = retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 2)

func newBot(api *fakeAPI, q Enqueuer, h Handler, opts Options) *Bot {
	opts.Retry = fastRetry
	return NewBot(api, h, q, opts)
}

func documentUpdate(chatID int64, name, mime string, size int) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 7,
		Chat:      &tgbotapi.Chat{ID: chatID},
		From:      &tgbotapi.User{ID: 99},
		Date:      int(time.Now().Unix()),
		Document:  &tgbotapi.Document{FileID: "file-1", FileName: name, MimeType: mime, FileSize: size},
	}}
}

func commandUpdate(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	}}
}

func TestIsZipDocument(t *testing.T) {
	assert.True(t, IsZipDocument("paper.zip", ""))
	assert.True(t, IsZipDocument("PAPER.ZIP", "application/octet-stream"))
	assert.True(t, IsZipDocument("upload", "application/zip"))
	assert.True(t, IsZipDocument("upload", "application/x-zip-compressed"))
	assert.False(t, IsZipDocument("paper.tar.gz", "application/gzip"))
}

func TestCommands(t *testing.T) {
	api := &fakeAPI{}
	b := newBot(api, &fakeQueue{}, &fakeHandler{}, Options{})

	b.HandleUpdate(t.Context(), commandUpdate(1, "/start"))
	b.HandleUpdate(t.Context(), commandUpdate(1, "/help"))

	texts := api.texts()
	require.Len(t, texts, 2)
	assert.Equal(t, pipeline.TextGreeting, texts[0])
	assert.Contains(t, texts[1], "texbot.yaml")
	assert.Contains(t, texts[1], "lualatex")
}

func TestNonZipDocumentRejected(t *testing.T) {
	api := &fakeAPI{}
	q := &fakeQueue{}
	b := newBot(api, q, &fakeHandler{}, Options{})

	b.HandleUpdate(t.Context(), documentUpdate(1, "paper.pdf", "application/pdf", 10))

	assert.Empty(t, q.jobs)
	assert.Equal(t, []string{pipeline.TextNotAnArchive}, api.texts())
}

func TestOversizedDocumentRejected(t *testing.T) {
	api := &fakeAPI{}
	q := &fakeQueue{}
	b := newBot(api, q, &fakeHandler{}, Options{MaxDownloadBytes: 100})

	b.HandleUpdate(t.Context(), documentUpdate(1, "paper.zip", "", 101))

	assert.Empty(t, q.jobs)
	assert.Equal(t, []string{pipeline.TextTooLarge}, api.texts())
}

func TestAllowedChats(t *testing.T) {
	api := &fakeAPI{}
	q := &fakeQueue{}
	b := newBot(api, q, &fakeHandler{}, Options{AllowedChats: []int64{42}})

	b.HandleUpdate(t.Context(), documentUpdate(1, "paper.zip", "", 10))
	assert.Empty(t, q.jobs)
	assert.Empty(t, api.texts())

	b.HandleUpdate(t.Context(), documentUpdate(42, "paper.zip", "", 10))
	assert.Len(t, q.jobs, 1)
}

func TestQueueFullRepliesBusy(t *testing.T) {
	api := &fakeAPI{}
	b := newBot(api, &fakeQueue{err: queue.ErrQueueFull}, &fakeHandler{}, Options{})

	b.HandleUpdate(t.Context(), documentUpdate(1, "paper.zip", "", 10))

	assert.Equal(t, []string{pipeline.TextBusy}, api.texts())
}

type rejectCounter struct {
	metrics.NoopRecorder
	rejected atomic.Int32
}

func (c *rejectCounter) IncQueueRejected() { c.rejected.Add(1) }

func TestQueueFullCountsRejectionOnce(t *testing.T) {
	rec := &rejectCounter{}
	q := queue.New(1, 1)
	q.SetRecorder(rec)
	require.NoError(t, q.Enqueue(&queue.Job{ID: "waiting", Run: func(context.Context) (string, error) { return "", nil }}))

	api := &fakeAPI{}
	b := newBot(api, q, &fakeHandler{}, Options{Recorder: rec})
	b.HandleUpdate(t.Context(), documentUpdate(1, "paper.zip", "", 10))

	assert.Equal(t, []string{pipeline.TextBusy}, api.texts())
	assert.Equal(t, int32(1), rec.rejected.Load())
}

func TestQueuedJobDownloadsAndHandles(t *testing.T) {
	payload := "PK fake archive bytes"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)

	api := &fakeAPI{fileURL: srv.URL + "/file/bot/doc.zip"}
	q := &fakeQueue{}
	h := &fakeHandler{}
	b := newBot(api, q, h, Options{HTTPClient: srv.Client()})

	b.HandleUpdate(t.Context(), documentUpdate(5, "paper.zip", "", len(payload)))
	require.Len(t, q.jobs, 1)
	job := q.jobs[0]
	assert.Equal(t, int64(5), job.ChatID)

	outcome, err := job.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, string(pipeline.OutcomeSuccess), outcome)
	require.Len(t, h.got, 1)
	assert.Equal(t, []byte(payload), h.got[0].Data)
	assert.Equal(t, job.ID, h.got[0].ID)
	assert.Equal(t, int64(99), h.got[0].UserID)
	assert.Equal(t, []string{"typing"}, api.actions)
	assert.Equal(t, []string{"handled"}, api.texts())
}

func TestDownloadOverLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	t.Cleanup(srv.Close)

	api := &fakeAPI{fileURL: srv.URL}
	q := &fakeQueue{}
	h := &fakeHandler{}
	b := newBot(api, q, h, Options{HTTPClient: srv.Client(), MaxDownloadBytes: 16})

	b.HandleUpdate(t.Context(), documentUpdate(5, "paper.zip", "", 10))
	require.Len(t, q.jobs, 1)

	outcome, err := q.jobs[0].Run(t.Context())
	require.Error(t, err)
	assert.Equal(t, "download_error", outcome)
	assert.Empty(t, h.got)
	assert.Equal(t, []string{pipeline.TextTooLarge}, api.texts())
}

func TestDownloadRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	b := newBot(&fakeAPI{fileURL: srv.URL}, &fakeQueue{}, &fakeHandler{}, Options{HTTPClient: srv.Client()})
	data, err := b.download(t.Context(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, int32(2), calls.Load())
}

func TestResponderRetriesTransientErrors(t *testing.T) {
	api := &fakeAPI{sendErrs: []error{
		&tgbotapi.Error{Code: http.StatusTooManyRequests, Message: "Too Many Requests"},
		errors.New("connection reset"),
	}}
	b := newBot(api, &fakeQueue{}, &fakeHandler{}, Options{})
	r := b.responder(&tgbotapi.Message{MessageID: 3, Chat: &tgbotapi.Chat{ID: 9}})

	require.NoError(t, r.SendText(t.Context(), "hello"))
	assert.Equal(t, []string{"hello"}, api.texts())
}

func TestResponderDoesNotRetryClientErrors(t *testing.T) {
	api := &fakeAPI{sendErrs: []error{
		&tgbotapi.Error{Code: http.StatusBadRequest, Message: "Bad Request: chat not found"},
	}}
	b := newBot(api, &fakeQueue{}, &fakeHandler{}, Options{})
	r := b.responder(&tgbotapi.Message{MessageID: 3, Chat: &tgbotapi.Chat{ID: 9}})

	err := r.SendText(t.Context(), "hello")
	require.Error(t, err)
	assert.True(t, tberrors.IsCategory(err, tberrors.CategoryTransport))
	assert.False(t, tberrors.IsRetryable(err))
	assert.Empty(t, api.texts())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	api := &fakeAPI{updates: make(chan tgbotapi.Update, 1)}
	b := newBot(api, &fakeQueue{}, &fakeHandler{}, Options{})
	api.updates <- commandUpdate(1, "/start")

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool { return len(api.texts()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.True(t, api.stopped)
}

func TestNewHTTPClientProxies(t *testing.T) {
	for _, raw := range []string{"", "socks5://localhost:9050/", "socks5h://user:pw@localhost:1080", "http://proxy:3128"} {
		c, err := NewHTTPClient(raw, time.Minute)
		require.NoError(t, err, raw)
		assert.Equal(t, time.Minute, c.Timeout)
	}
	_, err := NewHTTPClient("ftp://nope", time.Minute)
	require.Error(t, err)
}
