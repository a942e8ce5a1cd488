package dispatch

import (
	"context"
	"log/slog"

	"github.com/codewandler/clstr-dispatch/core/message"
	"github.com/codewandler/clstr-dispatch/core/unit"
)

// FailureHandler is the local failure sink. It receives the host message a
// failure relates to and never the internal envelope.
type FailureHandler interface {
	HandleFailure(ctx context.Context, msg *message.Message, err error)
}

type FailureHandlerFunc func(ctx context.Context, msg *message.Message, err error)

func (f FailureHandlerFunc) HandleFailure(ctx context.Context, msg *message.Message, err error) {
	f(ctx, msg, err)
}

// LogFailureHandler logs every failure at error level.
func LogFailureHandler(log *slog.Logger) FailureHandler {
	if log == nil {
		log = slog.Default()
	}
	return FailureHandlerFunc(func(ctx context.Context, msg *message.Message, err error) {
		log.ErrorContext(ctx, "dispatch failed",
			slog.Group("message",
				slog.String("id", msg.ID),
				slog.Any("headers", msg.Headers),
			),
			slog.Any("error", err),
		)
	})
}

// Producer forwards a successfully processed reply downstream.
type Producer interface {
	Produce(ctx context.Context, msg *message.Message) error
}

type ProducerFunc func(ctx context.Context, msg *message.Message) error

func (f ProducerFunc) Produce(ctx context.Context, msg *message.Message) error { return f(ctx, msg) }

// UnitProducer runs u against every successful reply, so a reply chain can
// be configured in place of a producer.
func UnitProducer(u unit.ProcessingUnit) Producer {
	return ProducerFunc(u.Run)
}
