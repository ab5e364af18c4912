package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stemline_pipeline_runs_total",
		Help: "Pipeline runs by source origin and outcome",
	}, []string{"source", "outcome"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stemline_pipeline_run_duration_seconds",
		Help:    "Wall time of pipeline runs",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800},
	}, []string{"source", "outcome"})

	stageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stemline_pipeline_stage_failures_total",
		Help: "Failed pipeline runs by the stage they failed in",
	}, []string{"stage"})

	pollAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stemline_poll_attempts_total",
		Help: "Successful status reads of remote jobs",
	}, []string{"service"})
)
