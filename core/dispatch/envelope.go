package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

// State is the state of one processing unit in an ExecutionRecord.
type State string

const (
	StatePending  State = "PENDING"
	StateComplete State = "COMPLETE"
	StateError    State = "ERROR"
)

// Outcome is the result of one attempted processing unit.
type Outcome struct {
	UnitID  string `json:"unit_id" msgpack:"unit_id"`
	State   State  `json:"state" msgpack:"state"`
	Failure string `json:"failure,omitempty" msgpack:"failure,omitempty"`
}

// ExecutionRecord is the append-only log of unit outcomes, in execution
// order. Next is the index of the next unit of the chain to run.
type ExecutionRecord struct {
	Outcomes []Outcome `json:"outcomes,omitempty" msgpack:"outcomes,omitempty"`
	Next     int       `json:"next" msgpack:"next"`
	// Done is set once the chain is exhausted.
	Done bool `json:"done,omitempty" msgpack:"done,omitempty"`
}

func (r *ExecutionRecord) Append(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// Failed reports whether any outcome is an error.
func (r ExecutionRecord) Failed() bool {
	for _, o := range r.Outcomes {
		if o.State == StateError {
			return true
		}
	}
	return false
}

// Status is StateError if any outcome failed, StateComplete once the chain
// is exhausted and StatePending otherwise.
func (r ExecutionRecord) Status() State {
	switch {
	case r.Failed():
		return StateError
	case r.Done:
		return StateComplete
	default:
		return StatePending
	}
}

// Err returns the recorded failures wrapped in ErrRemoteUnit, or
// ErrIncompleteRecord for a pending record. It is nil for a complete one.
func (r ExecutionRecord) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.State == StateError {
			errs = append(errs, fmt.Errorf("%w: %s: %s", ErrRemoteUnit, o.UnitID, o.Failure))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if !r.Done {
		return ErrIncompleteRecord
	}
	return nil
}

// Envelope is the unit shipped across the cluster: the translated message
// plus its execution record.
type Envelope struct {
	Payload       []byte          `json:"payload" msgpack:"payload"`
	Record        ExecutionRecord `json:"record" msgpack:"record"`
	EnqueuedAtMs  int64           `json:"enqueued_at_ms" msgpack:"enqueued_at_ms"`
	CorrelationID string          `json:"correlation_id,omitempty" msgpack:"correlation_id,omitempty"`
	Mode          SendMode        `json:"mode,omitempty" msgpack:"mode,omitempty"`
}

func (e Envelope) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Envelope{mode=%s correlation_id=%s enqueued_at_ms=%d payload=%dB status=%s outcomes=[",
		e.Mode, e.CorrelationID, e.EnqueuedAtMs, len(e.Payload), e.Record.Status())
	for i, o := range e.Record.Outcomes {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(o.UnitID + ":" + string(o.State))
	}
	b.WriteString("]}")
	return b.String()
}
