package metrics

import (
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "texbot"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration   *prom.HistogramVec
	stageResults    *prom.CounterVec
	requestDuration prom.Histogram
	requestOutcome  *prom.CounterVec
	passDuration    *prom.HistogramVec
	passExit        *prom.CounterVec
	retries         *prom.CounterVec
	rejected        prom.Counter
	queueDepth      prom.Gauge
	activeWorkers   prom.Gauge
}

// compilerBuckets cover quick single passes up to the default two minute timeout.
var compilerBuckets = []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 90, 120}

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		requestDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Total request duration from download to reply",
			Buckets:   compilerBuckets,
		}),
		requestOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "request_outcomes_total",
			Help:      "Requests by final outcome",
		}, []string{"outcome"}),
		passDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "compiler_pass_duration_seconds",
			Help:      "Duration of individual compiler invocations",
			Buckets:   compilerBuckets,
		}, []string{"program"}),
		passExit: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "compiler_pass_exit_total",
			Help:      "Compiler invocations by program and exit status",
		}, []string{"program", "exit_code"}),
		retries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "transport_retries_total",
			Help:      "Bot API calls retried after transient failures",
		}, []string{"operation"}),
		rejected: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "queue_rejected_total",
			Help:      "Requests turned away because the queue was full",
		}),
		queueDepth: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Requests waiting for a worker",
		}),
		activeWorkers: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workers",
			Help:      "Workers currently handling a request",
		}),
	}
	reg.MustRegister(pr.stageDuration, pr.stageResults, pr.requestDuration, pr.requestOutcome,
		pr.passDuration, pr.passExit, pr.retries, pr.rejected, pr.queueDepth, pr.activeWorkers)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveRequestDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.requestDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRequestOutcome(outcome string) {
	if p == nil {
		return
	}
	p.requestOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveCompilerPass(program string, exitCode int, d time.Duration) {
	if p == nil {
		return
	}
	p.passDuration.WithLabelValues(program).Observe(d.Seconds())
	p.passExit.WithLabelValues(program, strconv.Itoa(exitCode)).Inc()
}

func (p *PrometheusRecorder) IncTransportRetry(operation string) {
	if p == nil {
		return
	}
	p.retries.WithLabelValues(operation).Inc()
}

func (p *PrometheusRecorder) IncQueueRejected() {
	if p == nil {
		return
	}
	p.rejected.Inc()
}

func (p *PrometheusRecorder) SetQueueDepth(n int) {
	if p == nil {
		return
	}
	p.queueDepth.Set(float64(n))
}

func (p *PrometheusRecorder) SetActiveWorkers(n int) {
	if p == nil {
		return
	}
	p.activeWorkers.Set(float64(n))
}
