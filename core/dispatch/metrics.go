package dispatch

import "github.com/codewandler/clstr-dispatch/core/metrics"

// Metrics defines the metrics reported by the dispatcher and the executor.
// All methods are thread-safe.
type Metrics interface {
	// Intake and workers
	QueueDepth(depth int)
	Dispatched(mode SendMode, success bool)
	TargetUnresolved()
	LocalProcessed()

	// FailureRouted counts messages handed to the failure handler, by reason:
	// translation, interrupted, queue_closed, send, no_local_executor,
	// remote_unit, reply_transport, downstream, panic
	FailureRouted(reason string)

	// Replies: complete, error, lost, expired, cancelled
	RepliesPending(count int)
	ReplyReceived(status string)
	ReplyLatency() metrics.Timer

	// Executor
	UnitDuration(unitID string) metrics.Timer
	UnitCompleted(unitID string, success bool)
}

type nopMetrics struct{}

func (nopMetrics) QueueDepth(int) {}

func (nopMetrics) Dispatched(SendMode, bool) {}

func (nopMetrics) TargetUnresolved() {}

func (nopMetrics) LocalProcessed() {}

func (nopMetrics) FailureRouted(string) {}

func (nopMetrics) RepliesPending(int) {}

func (nopMetrics) ReplyReceived(string) {}

func (nopMetrics) ReplyLatency() metrics.Timer { return metrics.NopTimer() }

func (nopMetrics) UnitDuration(string) metrics.Timer { return metrics.NopTimer() }

func (nopMetrics) UnitCompleted(string, bool) {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
