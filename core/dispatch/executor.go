package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/codewandler/clstr-dispatch/core/cluster"
	"github.com/codewandler/clstr-dispatch/core/message"
	"github.com/codewandler/clstr-dispatch/core/unit"
	"github.com/codewandler/clstr-dispatch/internal/codec"
)

type ExecutorOptions struct {
	Log *slog.Logger
	// Units run in order against every received message.
	Units []unit.ProcessingUnit
	// ContinueOnError runs the remaining units after a failure.
	ContinueOnError bool
	Translator      message.Translator
	// Codec encodes envelopes on the wire. Defaults to JSON.
	Codec   codec.Codec
	Metrics Metrics
}

// Executor runs the configured units against envelopes received from the
// cluster. It is registered as the handler of every member.
type Executor struct {
	log             *slog.Logger
	units           []unit.ProcessingUnit
	continueOnError bool
	translator      message.Translator
	codec           codec.Codec
	metrics         Metrics
}

func NewExecutor(opts ExecutorOptions) (*Executor, error) {
	if opts.Translator == nil {
		return nil, &ConfigError{Field: "Translator", Reason: "is required"}
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	c := opts.Codec
	if c == nil {
		c = codec.JSONCodec{}
	}
	m := opts.Metrics
	if m == nil {
		m = NopMetrics()
	}
	return &Executor{
		log:             log.With(slog.String("component", "executor")),
		units:           opts.Units,
		continueOnError: opts.ContinueOnError,
		translator:      opts.Translator,
		codec:           c,
		metrics:         m,
	}, nil
}

// Handle is a cluster.ServerHandlerFunc. It replies with the processed
// envelope; an envelope that cannot be decoded or translated gets no reply.
// Published envelopes are acknowledged with an empty result.
func (e *Executor) Handle(ctx context.Context, env cluster.Envelope) ([]byte, error) {
	var denv Envelope
	if err := e.codec.Unmarshal(env.Data, &denv); err != nil {
		e.log.Error("failed to decode envelope",
			slog.String("address", env.Address),
			slog.Any("error", fmt.Errorf("%w: %w", ErrTranslation, err)),
		)
		return nil, cluster.ErrNoReply
	}

	if err := e.Execute(ctx, &denv); err != nil {
		e.log.Error("dropping envelope",
			slog.String("address", env.Address),
			slog.String("correlation_id", denv.CorrelationID),
			slog.Any("error", err),
		)
		return nil, cluster.ErrNoReply
	}

	if env.ReplyTo == "" || denv.Mode == ModeAll {
		return nil, nil
	}

	data, err := e.codec.Marshal(denv)
	if err != nil {
		e.log.Error("failed to encode reply", slog.Any("error", err))
		return nil, cluster.ErrNoReply
	}
	return data, nil
}

// Execute translates env.Payload, runs the remaining units from
// env.Record.Next and writes the mutated message back into env.Payload.
// Unit failures are recorded in env.Record; only translation failures are
// returned.
func (e *Executor) Execute(ctx context.Context, env *Envelope) error {
	msg, err := e.translator.Decode(env.Payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTranslation, err)
	}

	e.run(ctx, msg, &env.Record)

	payload, err := e.translator.Encode(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTranslation, err)
	}
	env.Payload = payload

	e.log.Debug("executed", slog.String("envelope", env.String()))
	return nil
}

func (e *Executor) run(ctx context.Context, msg *message.Message, rec *ExecutionRecord) {
	defer func() { rec.Done = rec.Next >= len(e.units) }()

	for rec.Next < len(e.units) {
		// a cancelled run stops before the next unit and leaves the record pending
		if ctx.Err() != nil {
			e.log.Debug("chain interrupted", slog.Int("next", rec.Next), slog.Any("error", ctx.Err()))
			return
		}

		u := e.units[rec.Next]
		rec.Next++

		if err := e.runUnit(ctx, u, msg); err != nil {
			rec.Append(Outcome{UnitID: u.ID(), State: StateError, Failure: err.Error()})
			if !e.continueOnError {
				return
			}
			continue
		}
		rec.Append(Outcome{UnitID: u.ID(), State: StateComplete})
	}
}

var errUnitPanicked = errors.New("unit panicked")

func (e *Executor) runUnit(ctx context.Context, u unit.ProcessingUnit, msg *message.Message) (err error) {
	defer e.metrics.UnitDuration(u.ID()).ObserveDuration()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("unit panicked", slog.String("unit", u.ID()), slog.Any("recovered", r))
			err = fmt.Errorf("%w: %v", errUnitPanicked, r)
		}
		e.metrics.UnitCompleted(u.ID(), err == nil)
	}()

	return u.Run(ctx, msg)
}
