package cluster

import "errors"

var (
	// Transport errors
	ErrTransportClosed = errors.New("transport closed")
	ErrNoSubscriber    = errors.New("no subscriber for address")
	ErrReplyTimeout    = errors.New("reply timeout")
	ErrRemote          = errors.New("remote handler failed")

	// Envelope errors
	ErrEnvelopeExpired = errors.New("envelope TTL expired")
	ErrReservedHeader  = errors.New("cannot set reserved header")
	ErrAddressRequired = errors.New("address is required")

	// Handler errors
	ErrHandlerTimeout = errors.New("handler exceeded deadline")

	// ErrNoReply is returned by a handler to suppress the reply. The
	// requester observes no reply and eventually times out.
	ErrNoReply = errors.New("no reply")
)
