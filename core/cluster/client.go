package cluster

import (
	"context"
	"errors"
	"fmt"
)

type ClientOptions struct {
	Transport       ClientTransport
	EnvelopeOptions []EnvelopeOption
	Metrics         ClusterMetrics
}

// Client sends envelopes to cluster addresses and records transport metrics.
// It is stateless and safe for concurrent use.
type Client struct {
	t       ClientTransport
	opts    []EnvelopeOption
	metrics ClusterMetrics
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("cluster: ClientOptions.Transport is required")
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NopClusterMetrics()
	}
	return &Client{
		t:       opts.Transport,
		opts:    opts.EnvelopeOptions,
		metrics: metrics,
	}, nil
}

func (c *Client) newEnv(address, correlationID string, data []byte, opts ...EnvelopeOption) (Envelope, error) {
	e := Envelope{
		Address:       address,
		CorrelationID: correlationID,
		Data:          data,
	}
	for _, opt := range c.opts {
		opt(&e)
	}
	for _, opt := range opts {
		opt(&e)
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// recordTransportError maps known transport errors to metric labels.
func (c *Client) recordTransportError(err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, ErrNoSubscriber):
		c.metrics.TransportError("no_subscriber")
	case errors.Is(err, ErrReplyTimeout):
		c.metrics.TransportError("timeout")
	case errors.Is(err, ErrEnvelopeExpired):
		c.metrics.TransportError("ttl_expired")
	case errors.Is(err, ErrTransportClosed):
		c.metrics.TransportError("closed")
	case errors.Is(err, ErrReservedHeader):
		c.metrics.TransportError("reserved_header")
	case errors.Is(err, ErrRemote):
		c.metrics.TransportError("remote")
	}
}

// Send hands data to one member serving address. onReply is called once
// with the outcome unless Send returns an error.
func (c *Client) Send(ctx context.Context, address, correlationID string, data []byte, onReply ReplyFunc, opts ...EnvelopeOption) error {
	env, err := c.newEnv(address, correlationID, data, opts...)
	if err != nil {
		c.metrics.SendCompleted(address, false)
		c.recordTransportError(err)
		return err
	}
	err = c.t.Send(ctx, env, func(data []byte, err error) {
		if err != nil {
			c.recordTransportError(err)
		}
		onReply(data, err)
	})
	c.metrics.SendCompleted(address, err == nil)
	if err != nil {
		c.recordTransportError(err)
	}
	return err
}

// Publish delivers data to every member serving address.
func (c *Client) Publish(ctx context.Context, address string, data []byte, opts ...EnvelopeOption) error {
	env, err := c.newEnv(address, "", data, opts...)
	if err == nil {
		err = c.t.Publish(ctx, env)
	}
	c.metrics.PublishCompleted(address, err == nil)
	if err != nil {
		c.recordTransportError(err)
	}
	return err
}
