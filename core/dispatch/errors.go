package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is wrapped by every *ConfigError.
	ErrConfiguration = errors.New("invalid dispatch configuration")

	ErrTranslation         = errors.New("message translation failed")
	ErrTargetResolution    = errors.New("target address resolution failed")
	ErrInterruptedDispatch = errors.New("dispatch interrupted")
	ErrQueueClosed         = errors.New("dispatch queue closed")
	ErrSend                = errors.New("cluster send failed")
	ErrNoLocalExecutor     = errors.New("no local executor configured")
	ErrNilMessage          = errors.New("nil message")

	// ErrRemoteUnit is wrapped by the failures recorded in an ExecutionRecord.
	ErrRemoteUnit = errors.New("processing unit failed")
	// ErrIncompleteRecord is reported for a reply whose chain did not finish.
	ErrIncompleteRecord = errors.New("execution record incomplete")

	ErrReplyTranslation  = errors.New("reply translation failed")
	ErrDownstreamProduce = errors.New("downstream produce failed")
)

// ConfigError reports an invalid option found while constructing a
// Dispatcher or Executor.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrConfiguration, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }
