package cluster

import (
	"context"
	"errors"
)

type Subscription interface {
	Unsubscribe() error
}

// ServerHandlerFunc handles a delivered envelope. The returned bytes are
// sent back to the requester when the envelope carries a reply address.
type ServerHandlerFunc = func(ctx context.Context, env Envelope) ([]byte, error)

// ReplyFunc receives the outcome of a Send. It is called exactly once, on
// a goroutine owned by the transport.
type ReplyFunc func(data []byte, err error)

type ClientTransport interface {
	// Send hands env to exactly one subscriber of env.Address and returns
	// without waiting for the reply. onReply receives the reply, the remote
	// error, ErrReplyTimeout once ctx is done, or ErrTransportClosed.
	// An error returned by Send means onReply is never called.
	Send(ctx context.Context, env Envelope, onReply ReplyFunc) error

	// Publish delivers env to every subscriber of env.Address. No reply.
	Publish(ctx context.Context, env Envelope) error

	Close() error
}

type ServerTransport interface {
	// Subscribe delivers envelopes sent or published to address until ctx
	// is done or the subscription is removed.
	Subscribe(ctx context.Context, address string, h ServerHandlerFunc) (Subscription, error)

	Close() error
}

// Transport sends messages and lets you subscribe to the addresses you serve.
type Transport interface {
	ClientTransport
	ServerTransport
}

// ReplyWaitError maps the end of a reply wait to the error handed to a
// ReplyFunc: ErrReplyTimeout when the deadline passed, ctx.Err() otherwise.
func ReplyWaitError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Join(ErrReplyTimeout, ctx.Err())
	}
	return ctx.Err()
}
