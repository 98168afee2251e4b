package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_runner_verifications_total",
			Help: "Total number of verification runs by verdict",
		},
		[]string{"outcome"},
	)

	RunErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_runner_run_errors_total",
			Help: "Runs that failed before producing a verdict",
		},
		[]string{"stage"}, // stage: "workspace", "create", "start", "wait", "logs"
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "challenge_runner_run_duration_ms",
			Help:    "Wall-clock duration of a verification run in milliseconds",
			Buckets: []float64{250, 500, 1000, 2500, 5000, 10000, 20000, 30000, 60000},
		},
		[]string{"outcome"},
	)

	ContainerCreationTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "challenge_runner_container_creation_ms",
			Help:    "Time to create a sandbox container",
			Buckets: []float64{50, 100, 200, 500, 1000, 2000},
		},
	)

	WarmPoolIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "challenge_runner_warm_pool_idle",
			Help: "Idle pre-created containers in the warm pool",
		},
	)

	WarmPoolHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_runner_warm_pool_requests_total",
			Help: "Runs that found (hit) or did not find (miss) a warm container",
		},
		[]string{"result"},
	)

	OrphansRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "challenge_runner_orphans_removed_total",
			Help: "Stale containers and workspaces removed by the sweeper",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "challenge_runner_queue_depth",
			Help: "Current number of verification jobs waiting for a worker",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "challenge_runner_rate_limit_hits_total",
			Help: "Total number of requests rejected by rate limiter",
		},
	)
)
