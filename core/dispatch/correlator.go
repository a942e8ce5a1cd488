package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codewandler/clstr-dispatch/core/cluster"
	"github.com/codewandler/clstr-dispatch/core/message"
	"github.com/codewandler/clstr-dispatch/core/metrics"
	"github.com/codewandler/clstr-dispatch/internal/codec"
)

type pendingReply struct {
	msg   *message.Message
	timer metrics.Timer
}

// correlator keeps the original message of every SINGLE send until its reply
// arrives, then passes the reply on to the producer or the failure handler.
type correlator struct {
	log        *slog.Logger
	translator message.Translator
	codec      codec.Codec
	producer   Producer
	failure    func(ctx context.Context, msg *message.Message, err error, reason string)
	metrics    Metrics

	mu      sync.Mutex
	pending map[string]*pendingReply
	wg      sync.WaitGroup
}

// track registers msg under correlationID. Every track is matched by either
// forget or onReply.
func (c *correlator) track(correlationID string, msg *message.Message) {
	c.mu.Lock()
	c.pending[correlationID] = &pendingReply{msg: msg, timer: c.metrics.ReplyLatency()}
	n := len(c.pending)
	c.mu.Unlock()

	c.wg.Add(1)
	c.metrics.RepliesPending(n)
}

func (c *correlator) take(correlationID string) (*pendingReply, bool) {
	c.mu.Lock()
	p, ok := c.pending[correlationID]
	delete(c.pending, correlationID)
	n := len(c.pending)
	c.mu.Unlock()

	if ok {
		c.wg.Done()
		c.metrics.RepliesPending(n)
	}
	return p, ok
}

// forget drops a registration whose send failed.
func (c *correlator) forget(correlationID string) {
	c.take(correlationID)
}

func (c *correlator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *correlator) wait() { c.wg.Wait() }

// onReply consumes the transport result for correlationID.
func (c *correlator) onReply(ctx context.Context, correlationID string, data []byte, err error) {
	p, ok := c.take(correlationID)
	if !ok {
		c.log.Warn("reply for unknown correlation id", slog.String("correlation_id", correlationID))
		return
	}
	p.timer.ObserveDuration()

	log := c.log.With(slog.String("correlation_id", correlationID), slog.String("message_id", p.msg.ID))

	if err != nil {
		switch {
		case errors.Is(err, cluster.ErrReplyTimeout):
			log.Warn("reply expired", slog.Any("error", err))
			c.metrics.ReplyReceived("expired")
		case errors.Is(err, context.Canceled):
			log.Warn("reply wait cancelled")
			c.metrics.ReplyReceived("cancelled")
			c.failure(ctx, p.msg, fmt.Errorf("%w: %w", ErrInterruptedDispatch, err), "interrupted")
		default:
			c.failure(ctx, p.msg, fmt.Errorf("%w: %w", ErrSend, err), "reply_transport")
		}
		return
	}

	var env Envelope
	if err := c.codec.Unmarshal(data, &env); err != nil {
		log.Error("dropping reply", slog.Any("error", fmt.Errorf("%w: %w", ErrReplyTranslation, err)))
		c.metrics.ReplyReceived("lost")
		return
	}

	c.complete(ctx, p.msg, env)
}

// complete handles a processed envelope on behalf of original. A payload
// that cannot be translated is logged and dropped without reaching the
// failure handler.
func (c *correlator) complete(ctx context.Context, original *message.Message, env Envelope) {
	msg, err := c.translator.Decode(env.Payload)
	if err != nil {
		c.log.Error("dropping reply",
			slog.String("message_id", original.ID),
			slog.Any("error", fmt.Errorf("%w: %w", ErrReplyTranslation, err)),
		)
		c.metrics.ReplyReceived("lost")
		return
	}
	msg.CopyObjectHeaders(original)

	if env.Record.Status() != StateComplete {
		c.metrics.ReplyReceived("error")
		c.failure(ctx, msg, env.Record.Err(), "remote_unit")
		return
	}

	c.metrics.ReplyReceived("complete")
	if c.producer == nil {
		c.log.Debug("no producer configured, reply dropped", slog.String("message_id", msg.ID))
		return
	}
	if err := c.producer.Produce(ctx, msg); err != nil {
		c.failure(ctx, msg, fmt.Errorf("%w: %w", ErrDownstreamProduce, err), "downstream")
	}
}
