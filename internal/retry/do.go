package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Do calls fn until it succeeds, fails with an error p.Retryable rejects, or
// p.MaxAttempts calls have been made. The error from the last attempt is kept
// in the returned chain so callers can still match its kind.
func Do[T any](ctx context.Context, log *slog.Logger, p Policy, call Call, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := p.Validate(); err != nil {
		return zero, err
	}
	log = loggerOrDiscard(log)

	var (
		lastErr error
		idle    time.Duration
		start   = time.Now()
	)
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			log.WarnContext(ctx, "retrying after conflict",
				call.attrs(),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", p.MaxAttempts),
				slog.Duration("idle_for", idle),
				slog.Duration("elapsed", time.Since(start)),
				slog.Any("last_error", lastErr),
			)
		}

		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if p.Retryable == nil || !p.Retryable(err) {
			return zero, err
		}
		if attempt == p.MaxAttempts {
			break
		}

		d := p.Delay(attempt)
		if err := p.sleep(ctx, d); err != nil {
			return zero, fmt.Errorf("retry: %s interrupted after %d attempts: %w", call.Name, attempt, err)
		}
		idle += d
	}
	return zero, fmt.Errorf("retry: %s gave up after %d attempts: %w", call.Name, p.MaxAttempts, lastErr)
}
