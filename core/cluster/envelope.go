package cluster

import (
	"fmt"
	"strings"
	"time"
)

const reservedHeaderPrefix = "x-clstr-"

type EnvelopeOption func(*Envelope)

func WithHeader(key, value string) EnvelopeOption {
	return func(e *Envelope) {
		if e.Headers == nil {
			e.Headers = make(map[string]string)
		}
		e.Headers[key] = value
	}
}

// WithTTL bounds how long the envelope may wait for delivery.
func WithTTL(ttl time.Duration) EnvelopeOption {
	return func(e *Envelope) {
		e.TTLMs = ttl.Milliseconds()
	}
}

// Envelope is the transport frame. Data is opaque to the transport.
type Envelope struct {
	Address       string            `json:"address"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Data          []byte            `json:"data"`
	ReplyTo       string            `json:"reply_to,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	CreatedAtMs   int64             `json:"created_at_ms,omitempty"`
	TTLMs         int64             `json:"ttl_ms,omitempty"`
}

func (e Envelope) GetHeader(key string) (string, bool) {
	if e.Headers == nil {
		return "", false
	}
	v, ok := e.Headers[key]
	return v, ok
}

// Validate checks the address and rejects headers in the reserved x-clstr- namespace.
func (e Envelope) Validate() error {
	if e.Address == "" {
		return ErrAddressRequired
	}
	for k := range e.Headers {
		if strings.HasPrefix(strings.ToLower(k), reservedHeaderPrefix) {
			return fmt.Errorf("%w: %s", ErrReservedHeader, k)
		}
	}
	return nil
}

// Expired reports whether the TTL has elapsed. Envelopes without TTL or
// creation time never expire.
func (e Envelope) Expired() bool {
	if e.TTLMs <= 0 || e.CreatedAtMs <= 0 {
		return false
	}
	return time.Now().UnixMilli() > e.CreatedAtMs+e.TTLMs
}

// TTL returns the remaining time to live, or 0 if unset or expired.
func (e Envelope) TTL() time.Duration {
	if e.TTLMs <= 0 || e.CreatedAtMs <= 0 {
		return 0
	}
	left := e.CreatedAtMs + e.TTLMs - time.Now().UnixMilli()
	if left <= 0 {
		return 0
	}
	return time.Duration(left) * time.Millisecond
}

// Stamp sets CreatedAtMs when a TTL is set without one.
func (e *Envelope) Stamp() {
	if e.TTLMs > 0 && e.CreatedAtMs == 0 {
		e.CreatedAtMs = time.Now().UnixMilli()
	}
}
