// Package address resolves the cluster address a message is dispatched to.
//
// Extraction expressions:
//
//	""              no address, the message is processed locally
//	"orders"        the constant address "orders"
//	"const:orders"  same, explicit form
//	"header:tenant" the value of the message header "tenant"
//	"id"            the message ID
package address

import (
	"errors"
	"fmt"
	"strings"

	"github.com/codewandler/clstr-dispatch/core/message"
)

var ErrHeaderMissing = errors.New("header missing")

// Extractor returns the target address for a message. An empty address
// means the message is not dispatched to the cluster.
type Extractor interface {
	Extract(msg *message.Message) (string, error)
}

type ExtractorFunc func(msg *message.Message) (string, error)

func (f ExtractorFunc) Extract(msg *message.Message) (string, error) { return f(msg) }

// Constant always resolves to addr.
func Constant(addr string) Extractor {
	return ExtractorFunc(func(*message.Message) (string, error) { return addr, nil })
}

// Header resolves to the value of the header key. A missing header is an
// error; a present but empty header resolves to the empty address.
func Header(key string) Extractor {
	return ExtractorFunc(func(msg *message.Message) (string, error) {
		v, ok := msg.Header(key)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrHeaderMissing, key)
		}
		return v, nil
	})
}

// MessageID resolves to the message ID.
func MessageID() Extractor {
	return ExtractorFunc(func(msg *message.Message) (string, error) { return msg.ID, nil })
}

// Parse builds an Extractor from an expression.
func Parse(expr string) (Extractor, error) {
	expr = strings.TrimSpace(expr)
	kind, arg, found := strings.Cut(expr, ":")
	if !found {
		if expr == "id" {
			return MessageID(), nil
		}
		return Constant(expr), nil
	}
	switch kind {
	case "const":
		return Constant(arg), nil
	case "header", "metadata":
		if arg == "" {
			return nil, fmt.Errorf("address expression %q: header key is required", expr)
		}
		return Header(arg), nil
	default:
		return nil, fmt.Errorf("address expression %q: unknown kind %q", expr, kind)
	}
}
