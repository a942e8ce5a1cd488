// Package prometheus provides Prometheus implementations of the metrics
// interfaces of the dispatch and cluster packages.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/clstr-dispatch/core/metrics"
)

func newTimer(h prometheus.Observer) metrics.Timer {
	return metrics.Since(func(d time.Duration) { h.Observe(d.Seconds()) })
}

// Default histogram buckets for latency metrics (in seconds).
var defaultBuckets = []float64{
	.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

// AllMetrics holds the Prometheus implementations for dispatch and cluster.
type AllMetrics struct {
	Dispatch *dispatchMetrics
	Cluster  *clusterMetrics
}

// NewAllMetrics registers dispatch and cluster metrics on reg.
func NewAllMetrics(reg prometheus.Registerer) *AllMetrics {
	return &AllMetrics{
		Dispatch: NewDispatchMetrics(reg).(*dispatchMetrics),
		Cluster:  NewClusterMetrics(reg).(*clusterMetrics),
	}
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
