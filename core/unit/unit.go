// Package unit defines processing units: the steps of business logic a
// cluster member runs against a received message.
//
// Units compose: a [Chain] is itself a [ProcessingUnit], so a configured
// chain may nest other chains.
package unit

import (
	"context"
	"errors"
	"fmt"

	"github.com/codewandler/clstr-dispatch/core/message"
)

// ProcessingUnit is a single step run against a message. Run may modify
// the message in place. A non-nil error marks the step as failed.
type ProcessingUnit interface {
	ID() string
	Run(ctx context.Context, msg *message.Message) error
}

type funcUnit struct {
	id string
	fn func(ctx context.Context, msg *message.Message) error
}

func (f *funcUnit) ID() string { return f.id }

func (f *funcUnit) Run(ctx context.Context, msg *message.Message) error { return f.fn(ctx, msg) }

// Func wraps fn as a ProcessingUnit.
func Func(id string, fn func(ctx context.Context, msg *message.Message) error) ProcessingUnit {
	return &funcUnit{id: id, fn: fn}
}

// Chain runs its units in order. By default the first failure stops the
// chain; with ContinueOnError all units run and the failures are joined.
type Chain struct {
	id              string
	units           []ProcessingUnit
	continueOnError bool
}

func NewChain(id string, units ...ProcessingUnit) *Chain {
	return &Chain{id: id, units: units}
}

// ContinueOnError sets whether a failing unit stops the chain.
func (c *Chain) ContinueOnError(v bool) *Chain {
	c.continueOnError = v
	return c
}

func (c *Chain) ID() string { return c.id }

func (c *Chain) Units() []ProcessingUnit { return c.units }

func (c *Chain) Run(ctx context.Context, msg *message.Message) error {
	var errs []error
	for _, u := range c.units {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := u.Run(ctx, msg); err != nil {
			err = fmt.Errorf("%s: %w", u.ID(), err)
			if !c.continueOnError {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ ProcessingUnit = (*Chain)(nil)
