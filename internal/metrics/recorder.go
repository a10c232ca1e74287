package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFailed   ResultLabel = "failed"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for request and stage metrics.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	ObserveRequestDuration(d time.Duration)
	IncRequestOutcome(outcome string)
	ObserveCompilerPass(program string, exitCode int, d time.Duration)
	IncTransportRetry(operation string)
	IncQueueRejected()
	SetQueueDepth(n int)
	SetActiveWorkers(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration)     {}
func (NoopRecorder) IncStageResult(string, ResultLabel)             {}
func (NoopRecorder) ObserveRequestDuration(time.Duration)           {}
func (NoopRecorder) IncRequestOutcome(string)                       {}
func (NoopRecorder) ObserveCompilerPass(string, int, time.Duration) {}
func (NoopRecorder) IncTransportRetry(string)                       {}
func (NoopRecorder) IncQueueRejected()                              {}
func (NoopRecorder) SetQueueDepth(int)                              {}
func (NoopRecorder) SetActiveWorkers(int)                           {}
