// Package message defines the host-side message that flows through a
// pipeline, and the translators that turn it into envelope payload bytes
// and back.
//
// A [Message] carries three kinds of data:
//
//   - ID: a stable identifier
//   - Headers and Payload: serialized with the message and shipped to remote members
//   - ObjectHeaders: in-process side-channel metadata that never leaves the process
//
// A Message is owned by a single goroutine at a time and is not safe for
// concurrent mutation. Once handed to a dispatcher it must not be modified
// by the caller.
package message

import (
	"maps"

	"github.com/google/uuid"
)

type Message struct {
	ID            string
	Headers       map[string]string
	Payload       []byte
	ObjectHeaders map[string]any
}

// New creates a message with a fresh random ID.
func New(payload []byte) *Message {
	return &Message{
		ID:      uuid.NewString(),
		Payload: payload,
	}
}

func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[key] = value
}

func (m *Message) Header(key string) (string, bool) {
	if m.Headers == nil {
		return "", false
	}
	v, ok := m.Headers[key]
	return v, ok
}

func (m *Message) SetObjectHeader(key string, value any) {
	if m.ObjectHeaders == nil {
		m.ObjectHeaders = make(map[string]any)
	}
	m.ObjectHeaders[key] = value
}

func (m *Message) ObjectHeader(key string) (any, bool) {
	if m.ObjectHeaders == nil {
		return nil, false
	}
	v, ok := m.ObjectHeaders[key]
	return v, ok
}

// CopyObjectHeaders copies every object header of src onto m, overwriting
// keys that exist on both.
func (m *Message) CopyObjectHeaders(src *Message) {
	if src == nil || len(src.ObjectHeaders) == 0 {
		return
	}
	if m.ObjectHeaders == nil {
		m.ObjectHeaders = make(map[string]any, len(src.ObjectHeaders))
	}
	maps.Copy(m.ObjectHeaders, src.ObjectHeaders)
}

// Clone returns a copy with its own header maps. Payload bytes and object
// header values are shared.
func (m *Message) Clone() *Message {
	return &Message{
		ID:            m.ID,
		Headers:       maps.Clone(m.Headers),
		Payload:       m.Payload,
		ObjectHeaders: maps.Clone(m.ObjectHeaders),
	}
}
