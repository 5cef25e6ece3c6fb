package retry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// State is the classification of one polled status.
type State int

const (
	StatePending State = iota
	StateTerminal
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateTerminal:
		return "terminal"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// WaitCondition names the polled field and the status values that mean
// "keep waiting" and "give up". An empty Failed set never fails.
type WaitCondition struct {
	Field   string
	Pending []string
	Failed  []string
}

// Evaluate classifies status. Pending wins when a value is in both sets.
func (c WaitCondition) Evaluate(status string) State {
	if slices.Contains(c.Pending, status) {
		return StatePending
	}
	if slices.Contains(c.Failed, status) {
		return StateFailed
	}
	return StateTerminal
}

// RemoteFailedError reports a polled status that entered the failed set.
type RemoteFailedError struct {
	Op     string
	Field  string
	Status string
	Detail string
}

func (e *RemoteFailedError) Error() string {
	msg := fmt.Sprintf("retry: %s: %s is %q", e.Op, e.Field, e.Status)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// StillPendingError reports a status that never left the pending set
// within the attempt budget.
type StillPendingError struct {
	Op       string
	Field    string
	Status   string
	Attempts int
}

func (e *StillPendingError) Error() string {
	return fmt.Sprintf("retry: %s: %s still %q after %d attempts", e.Op, e.Field, e.Status, e.Attempts)
}

// Poll calls fetch until status(result) leaves cond.Pending. Errors returned
// by fetch are never retried. A status in cond.Failed stops immediately with
// a *RemoteFailedError; running out of attempts yields a *StillPendingError.
// detail, when non-nil, adds diagnostics from the failed result.
func Poll[T any](ctx context.Context, log *slog.Logger, p Policy, cond WaitCondition, call Call,
	fetch func(ctx context.Context) (T, error), status func(T) string, detail func(T) string) (T, error) {
	var zero T
	if err := p.Validate(); err != nil {
		return zero, err
	}
	log = loggerOrDiscard(log)

	for attempt := 1; ; attempt++ {
		out, err := fetch(ctx)
		if err != nil {
			log.ErrorContext(ctx, "status fetch failed", call.attrs(), slog.Any("err", err))
			return zero, err
		}

		current := status(out)
		switch cond.Evaluate(current) {
		case StateTerminal:
			return out, nil
		case StateFailed:
			failed := &RemoteFailedError{Op: call.Name, Field: cond.Field, Status: current}
			if detail != nil {
				failed.Detail = detail(out)
			}
			log.ErrorContext(ctx, "remote operation failed, not waiting any longer",
				call.attrs(),
				slog.String("field", cond.Field),
				slog.String("status", current),
				slog.String("detail", failed.Detail),
			)
			return zero, failed
		}

		log.InfoContext(ctx, "waiting",
			slog.String("op", call.Name),
			slog.String("field", cond.Field),
			slog.String("status", current),
			slog.String("waiting_to_exit", strings.Join(cond.Pending, ",")),
			slog.Int("attempt", attempt),
		)
		if attempt >= p.MaxAttempts {
			return zero, &StillPendingError{Op: call.Name, Field: cond.Field, Status: current, Attempts: attempt}
		}
		if err := p.sleep(ctx, p.Delay(attempt)); err != nil {
			return zero, fmt.Errorf("retry: %s interrupted while %s is %q: %w", call.Name, cond.Field, current, err)
		}
	}
}
