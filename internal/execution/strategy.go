// Package execution decides how storage operations are run: once, or
// repeatedly while they keep failing with transient errors.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/alfredjeanlab/occurrences/internal/config"
)

// ErrRetryLimitExceeded is returned when an operation kept failing with
// transient errors until the retry budget ran out.
var ErrRetryLimitExceeded = errors.New("maximum number of retries exceeded")

// Strategy runs a storage operation. Implementations that retry call op
// again from scratch, so op must be safe to repeat in full.
type Strategy interface {
	Execute(ctx context.Context, op func(ctx context.Context) error) error

	// RetriesOnFailure reports whether Execute may call op more than once.
	RetriesOnFailure() bool
}

// New returns the strategy selected by cfg.
func New(cfg config.Database, logger *slog.Logger) Strategy {
	if !cfg.RetryOnFailure {
		return NoRetry{}
	}
	return &Retrying{
		MaxRetryCount: cfg.MaxRetryCount,
		Delay:         cfg.RetryDelay,
		MaxDelay:      cfg.MaxRetryDelay,
		Logger:        logger,
	}
}

// NoRetry runs each operation exactly once.
type NoRetry struct{}

func (NoRetry) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	return op(ctx)
}

func (NoRetry) RetriesOnFailure() bool { return false }

// Retrying re-runs an operation while it fails with transient errors, with
// a doubling delay between attempts.
type Retrying struct {
	MaxRetryCount int
	Delay         time.Duration
	MaxDelay      time.Duration

	// IsTransient classifies errors; nil means IsTransient.
	IsTransient func(error) bool
	// Clock defaults to the wall clock.
	Clock  clock.Clock
	Logger *slog.Logger
}

func (r *Retrying) RetriesOnFailure() bool { return true }

// Execute calls op until it succeeds, fails with a non-transient error,
// exhausts MaxRetryCount retries, or ctx is done.
func (r *Retrying) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	isTransient := r.IsTransient
	if isTransient == nil {
		isTransient = IsTransient
	}
	clk := r.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	delay := r.Delay
	if delay <= 0 {
		delay = time.Second
	}
	attempts := r.MaxRetryCount + 1

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return op(ctx)
		},
		IsFatalError: func(err error) bool {
			return !isTransient(err)
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Warn("transient storage failure", "attempt", attempt, "max_attempts", attempts, "err", err)
		},
		Attempts:    attempts,
		Delay:       delay,
		MaxDelay:    r.MaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       clk,
		Stop:        ctx.Done(),
	})
	switch {
	case err == nil:
		return nil
	case retry.IsAttemptsExceeded(err):
		return fmt.Errorf("%w (%d attempts): %w", ErrRetryLimitExceeded, attempts, retry.LastError(err))
	case retry.IsRetryStopped(err):
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return retry.LastError(err)
	}
	return err
}
