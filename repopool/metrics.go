package repopool

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	runTargets  *prometheus.GaugeVec
	runDuration prometheus.Gauge
)

// EnableMetrics will enable metrics collection for runs.
// Available metrics are...
//   - git_replicate_run_targets - (tags: status)
//   - git_replicate_run_duration_seconds
func EnableMetrics(metricsNamespace string, registerer prometheus.Registerer) {
	runTargets = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "git_replicate_run_targets",
		Help:      "Number of targets processed by the last run",
	}, []string{"status"})

	runDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "git_replicate_run_duration_seconds",
		Help:      "Duration of the last run",
	})

	registerer.MustRegister(
		runTargets,
		runDuration,
	)
}

func recordRun(res *Result) {
	// if metrics not enabled return
	if runTargets == nil || runDuration == nil {
		return
	}
	failed := len(res.Failures())
	runTargets.WithLabelValues("failed").Set(float64(failed))
	runTargets.WithLabelValues("ok").Set(float64(len(res.Outcomes) - failed))
	runDuration.Set(res.Duration.Seconds())
}
