// Package metrics records request pipeline metrics.
//
// Components receive a Recorder through dependency injection. NoopRecorder is the
// default and does nothing; PrometheusRecorder registers texbot_* collectors on a
// registry which the admin server exposes through HTTPHandler.
//
//	rec := metrics.NewPrometheusRecorder(reg)
//	orch := pipeline.NewOrchestrator(cfg, runner, pipeline.WithRecorder(rec))
package metrics
