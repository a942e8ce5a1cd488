package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/clstr-dispatch/core/cluster"
	"github.com/codewandler/clstr-dispatch/core/metrics"
)

// clusterMetrics implements cluster.ClusterMetrics using Prometheus.
type clusterMetrics struct {
	sendsTotal      *prometheus.CounterVec
	publishesTotal  *prometheus.CounterVec
	transportErrors *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	handlersTotal   *prometheus.CounterVec
	handlersActive  *prometheus.GaugeVec
	addressesOwned  *prometheus.GaugeVec
}

// NewClusterMetrics creates a new Prometheus implementation of ClusterMetrics.
func NewClusterMetrics(reg prometheus.Registerer) cluster.ClusterMetrics {
	m := &clusterMetrics{
		sendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_cluster_sends_total",
			Help: "Total number of single-member sends",
		}, []string{"address", "success"}),

		publishesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_cluster_publishes_total",
			Help: "Total number of all-member publishes",
		}, []string{"address", "success"}),

		transportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_cluster_transport_errors_total",
			Help: "Total number of transport errors",
		}, []string{"error_type"}),

		handlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clstr_cluster_handler_duration_seconds",
			Help:    "Handler execution time in seconds",
			Buckets: defaultBuckets,
		}, []string{"address"}),

		handlersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_cluster_handlers_total",
			Help: "Total number of handlers executed",
		}, []string{"address", "success"}),

		handlersActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clstr_cluster_handlers_active",
			Help: "Number of concurrent handlers",
		}, []string{"node_id"}),

		addressesOwned: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clstr_cluster_addresses_owned",
			Help: "Number of addresses served by node",
		}, []string{"node_id"}),
	}

	reg.MustRegister(
		m.sendsTotal,
		m.publishesTotal,
		m.transportErrors,
		m.handlerDuration,
		m.handlersTotal,
		m.handlersActive,
		m.addressesOwned,
	)

	return m
}

func (m *clusterMetrics) SendCompleted(address string, success bool) {
	m.sendsTotal.WithLabelValues(address, boolToStr(success)).Inc()
}

func (m *clusterMetrics) PublishCompleted(address string, success bool) {
	m.publishesTotal.WithLabelValues(address, boolToStr(success)).Inc()
}

func (m *clusterMetrics) TransportError(errorType string) {
	m.transportErrors.WithLabelValues(errorType).Inc()
}

func (m *clusterMetrics) HandlerDuration(address string) metrics.Timer {
	return newTimer(m.handlerDuration.WithLabelValues(address))
}

func (m *clusterMetrics) HandlerCompleted(address string, success bool) {
	m.handlersTotal.WithLabelValues(address, boolToStr(success)).Inc()
}

func (m *clusterMetrics) HandlersActive(nodeID string, count int) {
	m.handlersActive.WithLabelValues(nodeID).Set(float64(count))
}

func (m *clusterMetrics) AddressesOwned(nodeID string, count int) {
	m.addressesOwned.WithLabelValues(nodeID).Set(float64(count))
}

var _ cluster.ClusterMetrics = (*clusterMetrics)(nil)
