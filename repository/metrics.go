package repository

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// lastMirrorTimestamp is a Gauge that captures the timestamp of the last
	// successful reconcile of the mirror
	lastMirrorTimestamp *prometheus.GaugeVec
	// mirrorCount is a Counter vector of mirror reconciles
	mirrorCount *prometheus.CounterVec
	// mirrorLatency is a Histogram vector that keeps track of reconcile durations
	mirrorLatency *prometheus.HistogramVec
)

// EnableMetrics will enable metrics collection for mirror reconciles.
// Available metrics are...
//   - git_last_mirror_timestamp - (tags: repo)
//     A Gauge that captures the Timestamp of the last successful reconcile per repo.
//   - git_mirror_count - (tags: repo,action,success)
//     A Counter for each reconcile, tagged with the action (clone|update) and
//     the result (success=true|false)
//   - git_mirror_latency_seconds - (tags: action)
//     A Histogram that keeps track of the reconcile latency per action.
func EnableMetrics(metricsNamespace string, registerer prometheus.Registerer) {
	lastMirrorTimestamp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "git_last_mirror_timestamp",
		Help:      "Timestamp of the last successful mirror reconcile",
	},
		[]string{
			// owner/name of the repository
			"repo",
		},
	)

	mirrorCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "git_mirror_count",
		Help:      "Count of mirror reconcile operations",
	},
		[]string{
			"repo",
			// clone or update
			"action",
			// Whether the reconcile was successful or not
			"success",
		},
	)

	mirrorLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "git_mirror_latency_seconds",
		Help:      "Latency for mirror reconcile",
		Buckets:   []float64{0.5, 1, 5, 10, 20, 30, 60, 90, 120, 150, 300, 600},
	},
		[]string{
			"action",
		},
	)

	registerer.MustRegister(
		lastMirrorTimestamp,
		mirrorCount,
		mirrorLatency,
	)
}

// recordMirror records a reconcile attempt by updating all the
// relevant metrics
func recordMirror(repo string, action Action, success bool, start time.Time) {
	// if metrics not enabled return
	if lastMirrorTimestamp == nil || mirrorCount == nil || mirrorLatency == nil {
		return
	}
	if success {
		lastMirrorTimestamp.With(prometheus.Labels{
			"repo": repo,
		}).Set(float64(time.Now().Unix()))
	}
	mirrorCount.With(prometheus.Labels{
		"repo":    repo,
		"action":  string(action),
		"success": strconv.FormatBool(success),
	}).Inc()
	mirrorLatency.WithLabelValues(string(action)).Observe(time.Since(start).Seconds())
}
