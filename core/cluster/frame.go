package cluster

import (
	"encoding/json"
	"fmt"
)

// ResponseFrame is the reply encoding shared by all transports.
type ResponseFrame struct {
	Data []byte `json:"data,omitempty"`
	Err  string `json:"err,omitempty"`
}

// EncodeResponse encodes a handler result as a reply frame.
func EncodeResponse(data []byte, err error) []byte {
	rf := ResponseFrame{Data: data}
	if err != nil {
		rf.Err = err.Error()
		rf.Data = nil
	}
	b, _ := json.Marshal(rf)
	return b
}

// DecodeResponse decodes a reply frame. A remote error is returned wrapped
// in ErrRemote.
func DecodeResponse(b []byte) ([]byte, error) {
	var rf ResponseFrame
	if err := json.Unmarshal(b, &rf); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rf.Err != "" {
		return nil, fmt.Errorf("%w: %s", ErrRemote, rf.Err)
	}
	return rf.Data, nil
}
