package message

import (
	"errors"
	"fmt"

	"github.com/codewandler/clstr-dispatch/internal/codec"
)

var ErrEmptyPayload = errors.New("empty payload")

// Translator converts a Message to envelope payload bytes and back.
// Object headers are never part of the encoded form.
type Translator interface {
	Encode(m *Message) ([]byte, error)
	Decode(data []byte) (*Message, error)
}

type wireMessage struct {
	ID      string            `json:"id" msgpack:"id"`
	Headers map[string]string `json:"headers,omitempty" msgpack:"headers,omitempty"`
	Payload []byte            `json:"payload,omitempty" msgpack:"payload,omitempty"`
}

// NativeTranslator encodes ID, headers and payload with a codec.
type NativeTranslator struct {
	codec codec.Codec
}

// NewNativeTranslator builds a translator for the named codec ("json" or
// "msgpack"; empty selects json).
func NewNativeTranslator(codecName string) (*NativeTranslator, error) {
	c, err := codec.ByName(codecName)
	if err != nil {
		return nil, err
	}
	return &NativeTranslator{codec: c}, nil
}

func (t *NativeTranslator) Encode(m *Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("encode message: nil message")
	}
	return t.codec.Marshal(wireMessage{ID: m.ID, Headers: m.Headers, Payload: m.Payload})
}

func (t *NativeTranslator) Decode(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	var w wireMessage
	if err := t.codec.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &Message{ID: w.ID, Headers: w.Headers, Payload: w.Payload}, nil
}

var _ Translator = (*NativeTranslator)(nil)
