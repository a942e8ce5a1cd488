package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/clstr-dispatch/core/dispatch"
	"github.com/codewandler/clstr-dispatch/core/metrics"
)

// dispatchMetrics implements dispatch.Metrics using Prometheus.
type dispatchMetrics struct {
	queueDepth      prometheus.Gauge
	dispatchedTotal *prometheus.CounterVec
	unresolvedTotal prometheus.Counter
	localTotal      prometheus.Counter
	failuresTotal   *prometheus.CounterVec
	repliesPending  prometheus.Gauge
	repliesTotal    *prometheus.CounterVec
	replyLatency    prometheus.Histogram
	unitDuration    *prometheus.HistogramVec
	unitsTotal      *prometheus.CounterVec
}

// NewDispatchMetrics creates a new Prometheus implementation of dispatch.Metrics.
func NewDispatchMetrics(reg prometheus.Registerer) dispatch.Metrics {
	m := &dispatchMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clstr_dispatch_queue_depth",
			Help: "Number of messages waiting in the dispatch queue",
		}),

		dispatchedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_dispatch_dispatched_total",
			Help: "Total number of messages handed to the cluster",
		}, []string{"mode", "success"}),

		unresolvedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clstr_dispatch_target_unresolved_total",
			Help: "Total number of messages dropped because no target address could be resolved",
		}),

		localTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clstr_dispatch_local_total",
			Help: "Total number of messages processed locally",
		}),

		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_dispatch_failures_total",
			Help: "Total number of messages routed to the failure handler",
		}, []string{"reason"}),

		repliesPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clstr_dispatch_replies_pending",
			Help: "Number of sends awaiting a reply",
		}),

		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_dispatch_replies_total",
			Help: "Total number of replies by status",
		}, []string{"status"}),

		replyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clstr_dispatch_reply_latency_seconds",
			Help:    "Time from send to reply in seconds",
			Buckets: defaultBuckets,
		}),

		unitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clstr_dispatch_unit_duration_seconds",
			Help:    "Processing unit execution time in seconds",
			Buckets: defaultBuckets,
		}, []string{"unit"}),

		unitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_dispatch_units_total",
			Help: "Total number of processing unit runs",
		}, []string{"unit", "success"}),
	}

	reg.MustRegister(
		m.queueDepth,
		m.dispatchedTotal,
		m.unresolvedTotal,
		m.localTotal,
		m.failuresTotal,
		m.repliesPending,
		m.repliesTotal,
		m.replyLatency,
		m.unitDuration,
		m.unitsTotal,
	)

	return m
}

func (m *dispatchMetrics) QueueDepth(depth int) { m.queueDepth.Set(float64(depth)) }

func (m *dispatchMetrics) Dispatched(mode dispatch.SendMode, success bool) {
	m.dispatchedTotal.WithLabelValues(string(mode), boolToStr(success)).Inc()
}

func (m *dispatchMetrics) TargetUnresolved() { m.unresolvedTotal.Inc() }

func (m *dispatchMetrics) LocalProcessed() { m.localTotal.Inc() }

func (m *dispatchMetrics) FailureRouted(reason string) {
	m.failuresTotal.WithLabelValues(reason).Inc()
}

func (m *dispatchMetrics) RepliesPending(count int) { m.repliesPending.Set(float64(count)) }

func (m *dispatchMetrics) ReplyReceived(status string) {
	m.repliesTotal.WithLabelValues(status).Inc()
}

func (m *dispatchMetrics) ReplyLatency() metrics.Timer { return newTimer(m.replyLatency) }

func (m *dispatchMetrics) UnitDuration(unitID string) metrics.Timer {
	return newTimer(m.unitDuration.WithLabelValues(unitID))
}

func (m *dispatchMetrics) UnitCompleted(unitID string, success bool) {
	m.unitsTotal.WithLabelValues(unitID, boolToStr(success)).Inc()
}

var _ dispatch.Metrics = (*dispatchMetrics)(nil)
