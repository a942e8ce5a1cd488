// Package codec selects the byte encoding used for envelopes on the wire.
package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	NameJSON    = "json"
	NameMsgpack = "msgpack"
)

type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type JSONCodec struct{}

func (JSONCodec) Name() string                    { return NameJSON }
func (JSONCodec) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (JSONCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }

// MsgpackCodec encodes with msgpack. Struct fields are matched by their
// `msgpack` tags, falling back to the Go field name.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string                    { return NameMsgpack }
func (MsgpackCodec) Marshal(v any) ([]byte, error)   { return msgpack.Marshal(v) }
func (MsgpackCodec) Unmarshal(b []byte, v any) error { return msgpack.Unmarshal(b, v) }

// ByName resolves a codec name. The empty name selects JSON.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameJSON:
		return JSONCodec{}, nil
	case NameMsgpack:
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
