package unit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"

	"github.com/codewandler/clstr-dispatch/core/message"
)

// Log logs the message ID, headers and payload size at the given level.
func Log(id string, log *slog.Logger, level slog.Level) ProcessingUnit {
	if log == nil {
		log = slog.Default()
	}
	return Func(id, func(ctx context.Context, msg *message.Message) error {
		log.Log(ctx, level, "message",
			slog.Group("message",
				slog.String("id", msg.ID),
				slog.Any("headers", msg.Headers),
				slog.Int("size", len(msg.Payload)),
			),
		)
		return nil
	})
}

// SetHeader sets a fixed header on every message.
func SetHeader(id, key, value string) ProcessingUnit {
	return Func(id, func(_ context.Context, msg *message.Message) error {
		msg.SetHeader(key, value)
		return nil
	})
}

// Upper upper-cases the payload.
func Upper(id string) ProcessingUnit {
	return Func(id, func(_ context.Context, msg *message.Message) error {
		msg.Payload = bytes.ToUpper(msg.Payload)
		return nil
	})
}

// Fail always fails with reason.
func Fail(id, reason string) ProcessingUnit {
	return Func(id, func(context.Context, *message.Message) error {
		return errors.New(reason)
	})
}
