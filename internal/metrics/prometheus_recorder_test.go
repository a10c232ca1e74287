package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveStageDuration("extract", 150*time.Millisecond)
	pr.IncStageResult("extract", ResultSuccess)
	pr.ObserveRequestDuration(2 * time.Second)
	pr.IncRequestOutcome("success")
	pr.IncRequestOutcome("success")
	pr.ObserveCompilerPass("pdflatex", 1, time.Second)
	pr.IncTransportRetry("sendDocument")
	pr.IncQueueRejected()
	pr.SetQueueDepth(3)
	pr.SetActiveWorkers(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(pr.requestOutcome.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.passExit.WithLabelValues("pdflatex", "1")))
	assert.Equal(t, 3.0, testutil.ToFloat64(pr.queueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.rejected))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestNilPrometheusRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	assert.NotPanics(t, func() {
		pr.ObserveStageDuration("build", time.Second)
		pr.IncRequestOutcome("success")
		pr.SetActiveWorkers(1)
	})
}

func TestHTTPHandlerServesRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	NewPrometheusRecorder(reg).IncRequestOutcome("locate_error")

	srv := httptest.NewServer(HTTPHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `texbot_request_outcomes_total{outcome="locate_error"} 1`)
}
