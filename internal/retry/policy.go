// Package retry holds the two waiting primitives used by the deployment
// workflows: Do retries an operation while it fails with a retryable error,
// and Poll re-reads a status until it leaves a pending set. Both sleep
// synchronously between attempts using an exponential Policy.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy is an immutable exponential backoff description. The delay after
// attempt n (starting at 1) is BaseDelay * Multiplier^(n-1), capped at
// MaxDelay when MaxDelay is positive.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration

	// Retryable reports whether Do should try again after err. Poll ignores it.
	Retryable func(err error) bool
	// Sleep defaults to a context-aware time.Sleep.
	Sleep Sleeper
}

// Call names an operation for log output.
type Call struct {
	Name string
	Args []any
}

// Delay returns the wait after the given 1-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Validate rejects policies that could never make an attempt.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry: max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("retry: base delay must not be negative, got %s", p.BaseDelay)
	}
	return nil
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
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

func (c Call) attrs() slog.Attr {
	return slog.Group("call", slog.String("op", c.Name), slog.Any("args", c.Args))
}

func loggerOrDiscard(log *slog.Logger) *slog.Logger {
	if log != nil {
		return log
	}
	return slog.New(discardHandler{})
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
