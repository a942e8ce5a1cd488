package cluster

import "github.com/codewandler/clstr-dispatch/core/metrics"

// ClusterMetrics defines the metrics reported by the cluster transport layer.
// All methods are thread-safe.
type ClusterMetrics interface {
	// Client operations
	SendCompleted(address string, success bool)
	PublishCompleted(address string, success bool)

	// Transport errors: no_subscriber, closed, ttl_expired, reserved_header, timeout, remote
	TransportError(errorType string)

	// Handler operations
	HandlerDuration(address string) metrics.Timer
	HandlerCompleted(address string, success bool)
	HandlersActive(nodeID string, count int)

	// Addresses served by a node
	AddressesOwned(nodeID string, count int)
}

// nopClusterMetrics is a no-op implementation of ClusterMetrics.
type nopClusterMetrics struct{}

func (nopClusterMetrics) SendCompleted(string, bool)    {}
func (nopClusterMetrics) PublishCompleted(string, bool) {}

func (nopClusterMetrics) TransportError(string) {}

func (nopClusterMetrics) HandlerDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopClusterMetrics) HandlerCompleted(string, bool)        {}
func (nopClusterMetrics) HandlersActive(string, int)           {}

func (nopClusterMetrics) AddressesOwned(string, int) {}

// NopClusterMetrics returns a no-op ClusterMetrics implementation.
func NopClusterMetrics() ClusterMetrics { return nopClusterMetrics{} }
