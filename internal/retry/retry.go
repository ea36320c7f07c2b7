// Package retry runs optimistic read-validate-commit cycles, retrying only
// the store's transaction-conflict failure class.
package retry

import (
	"context"
	"errors"
	"time"

	"cardvault-api/internal/observability"
	"cardvault-api/internal/store"
	"cardvault-api/pkg/apierror"
)

// Defaults used when a Policy leaves a field zero.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 50 * time.Millisecond
)

// Policy configures one call site.
type Policy struct {
	// Name labels metrics, e.g. "purchase".
	Name        string
	MaxAttempts int
	BaseDelay   time.Duration
	// Backoff returns the sleep after the given failed attempt (1-based).
	// Defaults to Linear(BaseDelay).
	Backoff func(attempt int) time.Duration
}

// Linear sleeps base × attempt.
func Linear(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

// Named returns a copy of p labelled name.
func (p Policy) Named(name string) Policy {
	p.Name = name
	return p
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.Backoff == nil {
		p.Backoff = Linear(p.BaseDelay)
	}
	if p.Name == "" {
		p.Name = "unnamed"
	}
	return p
}

// Do runs fn until it succeeds, fails with a non-conflict error, or has
// failed with a conflict MaxAttempts times. Exhaustion returns an
// apierror.TransactionConflict; other errors are returned unchanged.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, store.ErrTransactionConflict) {
			return zero, err
		}
		if attempt >= p.MaxAttempts {
			observability.TxConflicts.WithLabelValues(p.Name).Inc()
			return zero, apierror.TransactionConflict("")
		}

		observability.TxRetries.WithLabelValues(p.Name).Inc()
		if err := sleepWithContext(ctx, p.Backoff(attempt)); err != nil {
			return zero, err
		}
	}
}

// Run is Do for functions without a result.
func Run(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
