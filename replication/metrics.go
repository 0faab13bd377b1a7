package replication

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	lastReplicationTimestamp *prometheus.GaugeVec
	replicationCount         *prometheus.CounterVec
	replicationLatency       prometheus.Histogram
)

// EnableMetrics will enable metrics collection for replications.
// Available metrics are...
//   - git_last_replication_timestamp - (tags: repo)
//   - git_replication_count - (tags: repo,success)
//   - git_replication_latency_seconds
func EnableMetrics(metricsNamespace string, registerer prometheus.Registerer) {
	lastReplicationTimestamp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "git_last_replication_timestamp",
		Help:      "Timestamp of the last successful replication",
	}, []string{"repo"})

	replicationCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "git_replication_count",
		Help:      "Count of replication attempts",
	}, []string{"repo", "success"})

	replicationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "git_replication_latency_seconds",
		Help:      "Latency for replication of a repository",
		Buckets:   []float64{0.5, 1, 5, 10, 20, 30, 60, 90, 120, 150, 300, 600},
	})

	registerer.MustRegister(
		lastReplicationTimestamp,
		replicationCount,
		replicationLatency,
	)
}

func recordReplication(repo string, success bool, start time.Time) {
	// if metrics not enabled return
	if lastReplicationTimestamp == nil || replicationCount == nil || replicationLatency == nil {
		return
	}
	if success {
		lastReplicationTimestamp.WithLabelValues(repo).Set(float64(time.Now().Unix()))
	}
	replicationCount.WithLabelValues(repo, strconv.FormatBool(success)).Inc()
	replicationLatency.Observe(time.Since(start).Seconds())
}
