// Package cluster provides addressed message delivery between the members
// of a cluster: request/reply to one member and broadcast to all members.
//
// # Architecture
//
// The package consists of three main components:
//
//   - [Client]: Sends envelopes to an address, records transport metrics
//   - [Node]: Subscribes to addresses and handles incoming envelopes
//   - [Transport]: Abstracts the underlying messaging infrastructure
//
// # Addressing
//
// Every member serving the same address forms a group. [ClientTransport.Send]
// delivers to exactly one member of the group and routes that member's
// reply back to the sender; [ClientTransport.Publish] delivers to every
// member and expects no reply.
//
// # Asynchronous replies
//
// Send never blocks on the remote side. The caller passes a [ReplyFunc]
// that the transport invokes exactly once, on a transport goroutine:
//
//	err := client.Send(ctx, "orders", correlationID, data, func(reply []byte, err error) {
//	    // runs when the reply arrives, the ctx deadline passes, or the transport closes
//	})
//
// A reply wait bounded by a context deadline ends with [ErrReplyTimeout].
// A handler that returns [ErrNoReply] suppresses its reply.
//
// # Node Usage
//
//	node := cluster.NewNode(cluster.NodeOptions{
//	    NodeID:    "node-1",
//	    Transport: natsTransport,
//	    Addresses: []string{"orders"},
//	    Handler: func(ctx context.Context, env cluster.Envelope) ([]byte, error) {
//	        return response, nil
//	    },
//	})
//	node.Run(ctx)
//
// # Transport Layer
//
// [MemoryTransport] serves tests and single-process setups. The
// adapters/nats package provides a NATS implementation.
//
// # Error Handling
//
// Common errors include:
//
//   - [ErrNoSubscriber]: No member serves the target address
//   - [ErrEnvelopeExpired]: Envelope TTL exceeded before delivery
//   - [ErrHandlerTimeout]: Handler exceeded its deadline
//   - [ErrRemote]: The remote handler returned an error
package cluster
