package runner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "micropsi_nodenet_steps_total",
		Help: "Steps completed by run loops, per net.",
	}, []string{"net"})

	stepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "micropsi_nodenet_step_duration_seconds",
		Help:    "Wall-clock duration of a single net step.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	runFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "micropsi_nodenet_run_failures_total",
		Help: "Run loops that ended with an error, per net.",
	}, []string{"net"})

	runningNets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "micropsi_nodenet_running",
		Help: "Number of nets with an active run loop.",
	})
)
