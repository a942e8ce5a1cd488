package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type (
	NodeOptions struct {
		Log       *slog.Logger
		NodeID    string
		Transport ServerTransport
		// Addresses served by this node. Every address gets the same handler.
		Addresses []string
		Handler   ServerHandlerFunc
		Metrics   ClusterMetrics
	}

	// Node is one cluster member: it consumes its addresses and passes
	// received envelopes to its handler.
	Node struct {
		log       *slog.Logger
		nodeID    string
		t         ServerTransport
		h         ServerHandlerFunc
		addresses []string
		metrics   ClusterMetrics
		active    atomic.Int32
	}
)

func NewNode(opts NodeOptions) *Node {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	nodeID := opts.NodeID
	if nodeID == "" {
		nodeID = fmt.Sprintf("node-%s", gonanoid.Must(6))
	}

	hdl := opts.Handler
	if hdl == nil {
		hdl = func(ctx context.Context, env Envelope) ([]byte, error) {
			return nil, fmt.Errorf("no handler registered")
		}
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = NopClusterMetrics()
	}

	return &Node{
		log:       log.With(slog.String("node", nodeID)),
		nodeID:    nodeID,
		t:         opts.Transport,
		addresses: opts.Addresses,
		h:         hdl,
		metrics:   metrics,
	}
}

func (n *Node) ID() string { return n.nodeID }

func (n *Node) Addresses() []string { return n.addresses }

func (n *Node) handleMsg(ctx context.Context, env Envelope) (data []byte, err error) {
	n.log.Debug(
		"handle",
		slog.Group(
			"envelope",
			slog.String("address", env.Address),
			slog.String("correlation_id", env.CorrelationID),
			slog.Bool("reply", env.ReplyTo != ""),
			slog.Any("headers", env.Headers),
		),
	)

	n.metrics.HandlersActive(n.nodeID, int(n.active.Add(1)))
	defer func() {
		n.metrics.HandlersActive(n.nodeID, int(n.active.Add(-1)))
	}()
	defer n.metrics.HandlerDuration(env.Address).ObserveDuration()

	data, err = n.h(ctx, env)
	n.metrics.HandlerCompleted(env.Address, err == nil)
	if errors.Is(err, ErrNoReply) {
		n.log.Debug("handler declined to reply", slog.String("correlation_id", env.CorrelationID))
		return
	}
	if err != nil {
		n.log.Error(
			"failed to handle message",
			slog.Group(
				"message",
				slog.String("address", env.Address),
				slog.String("correlation_id", env.CorrelationID),
				slog.Any("headers", env.Headers),
			),
			slog.Any("error", err),
		)
	}
	return
}

// Run subscribes all addresses. Subscriptions end when ctx is done.
func (n *Node) Run(ctx context.Context) error {
	n.log.Info("starting node", slog.Any("addresses", n.addresses))
	for _, a := range n.addresses {
		_, err := n.t.Subscribe(ctx, a, n.handleMsg)
		if err != nil {
			return fmt.Errorf("failed to subscribe to address %s: %w", a, err)
		}
	}
	n.metrics.AddressesOwned(n.nodeID, len(n.addresses))
	return nil
}
