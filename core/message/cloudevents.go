package message

import (
	"encoding/json"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/types"
)

const octetStream = "application/octet-stream"

// headersExtension holds the JSON encoded message headers. CloudEvents
// extension names are restricted to lower-case alphanumerics, so headers
// are not mapped one by one.
const headersExtension = "clstrheaders"

// CloudEventsTranslator encodes a Message as a structured-mode CloudEvent.
// The message ID becomes the event ID and the payload the event data.
type CloudEventsTranslator struct {
	Source      string
	Type        string
	ContentType string
}

func (t CloudEventsTranslator) Encode(m *Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("encode event: nil message")
	}

	e := cloudevents.NewEvent()
	e.SetID(m.ID)
	e.SetSource(valueOr(t.Source, "clstr-dispatch"))
	e.SetType(valueOr(t.Type, "clstr.dispatch.message"))

	if len(m.Headers) > 0 {
		h, err := json.Marshal(m.Headers)
		if err != nil {
			return nil, fmt.Errorf("encode headers: %w", err)
		}
		e.SetExtension(headersExtension, string(h))
	}

	if m.Payload != nil {
		if err := e.SetData(valueOr(t.ContentType, octetStream), m.Payload); err != nil {
			return nil, fmt.Errorf("set event data: %w", err)
		}
	}

	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}
	return json.Marshal(e)
}

func (t CloudEventsTranslator) Decode(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}

	e := cloudevents.NewEvent()
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	m := &Message{ID: e.ID(), Payload: e.Data()}
	if v, ok := e.Extensions()[headersExtension]; ok {
		s, err := types.ToString(v)
		if err != nil {
			return nil, fmt.Errorf("decode event: extension %s: %w", headersExtension, err)
		}
		if err := json.Unmarshal([]byte(s), &m.Headers); err != nil {
			return nil, fmt.Errorf("decode headers: %w", err)
		}
	}
	return m, nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

var _ Translator = CloudEventsTranslator{}
