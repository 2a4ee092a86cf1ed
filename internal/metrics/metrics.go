package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "erpsync"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Control API requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	syncPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_passes_total",
			Help:      "Synchronization passes by outcome.",
		},
		[]string{"outcome"},
	)

	replayedActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replayed_actions_total",
			Help:      "Pending action replays by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	syncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_pass_duration_seconds",
			Help:      "Wall time of completed synchronization passes.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	pendingActions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_actions",
			Help:      "Actions currently buffered in the offline queue.",
		},
	)

	online = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online",
			Help:      "1 when the backend was reachable at the last poll.",
		},
	)
)

// Pass outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeOffline   = "offline"
	OutcomeBusy      = "busy"
)

// Replay outcomes.
const (
	ReplaySucceeded    = "succeeded"
	ReplayFailed       = "failed"
	ReplayDeadLettered = "dead_lettered"
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, syncPasses, replayedActions, syncDuration, pendingActions, online)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncSyncPass(outcome string) {
	syncPasses.WithLabelValues(outcome).Inc()
}

func IncReplay(operation, outcome string) {
	replayedActions.WithLabelValues(operation, outcome).Inc()
}

func ObserveSyncDuration(d time.Duration) {
	syncDuration.Observe(d.Seconds())
}

func SetPending(n int) {
	pendingActions.Set(float64(n))
}

func SetOnline(v bool) {
	if v {
		online.Set(1)
		return
	}
	online.Set(0)
}
