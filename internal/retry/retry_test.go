package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errConflict = errors.New("conflict")

type recordingSleeper struct {
	waits []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func conflictPolicy(max int, s *recordingSleeper) Policy {
	return Policy{
		MaxAttempts: max,
		BaseDelay:   1500 * time.Millisecond,
		Multiplier:  2,
		Retryable:   func(err error) bool { return errors.Is(err, errConflict) },
		Sleep:       s.sleep,
	}
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{BaseDelay: time.Second, Multiplier: 2}
	require.Equal(t, time.Second, p.Delay(1))
	require.Equal(t, 2*time.Second, p.Delay(2))
	require.Equal(t, 8*time.Second, p.Delay(4))

	p.MaxDelay = 3 * time.Second
	require.Equal(t, 3*time.Second, p.Delay(4))
}

func TestPolicy_Validate(t *testing.T) {
	require.Error(t, Policy{}.Validate())
	require.Error(t, Policy{MaxAttempts: 1, BaseDelay: -time.Second}.Validate())
	require.NoError(t, Policy{MaxAttempts: 1}.Validate())
}

func TestDo_SucceedsAfterConflicts(t *testing.T) {
	s := &recordingSleeper{}
	calls := 0
	out, err := Do(context.Background(), nil, conflictPolicy(10, s), Call{Name: "CreateIntentVersion"}, func(context.Context) (string, error) {
		calls++
		if calls <= 3 {
			return "", errConflict
		}
		return "7", nil
	})
	require.NoError(t, err)
	require.Equal(t, "7", out)
	require.Equal(t, 4, calls)
	require.Len(t, s.waits, 3)
	for i := 1; i < len(s.waits); i++ {
		require.Greater(t, s.waits[i], s.waits[i-1])
	}
}

func TestDo_GivesUpAtMaxAttempts(t *testing.T) {
	s := &recordingSleeper{}
	calls := 0
	_, err := Do(context.Background(), nil, conflictPolicy(10, s), Call{Name: "PutBot"}, func(context.Context) (int, error) {
		calls++
		return 0, errConflict
	})
	require.Error(t, err)
	require.ErrorIs(t, err, errConflict)
	require.Contains(t, err.Error(), "gave up after 10 attempts")
	require.Equal(t, 10, calls)
	require.Len(t, s.waits, 9)
}

func TestDo_NonRetryableErrorReturnsImmediately(t *testing.T) {
	s := &recordingSleeper{}
	boom := errors.New("access denied")
	calls := 0
	_, err := Do(context.Background(), nil, conflictPolicy(10, s), Call{Name: "PutBot"}, func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
	require.Empty(t, s.waits)
}

func TestDo_StopsWhenSleepIsInterrupted(t *testing.T) {
	p := conflictPolicy(5, &recordingSleeper{})
	p.Sleep = func(ctx context.Context, _ time.Duration) error { return context.Canceled }
	calls := 0
	_, err := Do(context.Background(), nil, p, Call{Name: "PutBot"}, func(context.Context) (int, error) {
		calls++
		return 0, errConflict
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestDo_DefaultSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Policy{MaxAttempts: 3, BaseDelay: time.Hour, Multiplier: 2, Retryable: func(error) bool { return true }}
	_, err := Do(ctx, nil, p, Call{Name: "op"}, func(context.Context) (int, error) { return 0, errConflict })
	require.ErrorIs(t, err, context.Canceled)
}

func TestWaitCondition_Evaluate(t *testing.T) {
	cond := WaitCondition{Field: "status", Pending: []string{"BUILDING"}, Failed: []string{"FAILED"}}
	require.Equal(t, StatePending, cond.Evaluate("BUILDING"))
	require.Equal(t, StateFailed, cond.Evaluate("FAILED"))
	require.Equal(t, StateTerminal, cond.Evaluate("READY"))

	noFail := WaitCondition{Field: "version", Pending: []string{"3"}}
	require.Equal(t, StateTerminal, noFail.Evaluate("FAILED"))
}

type botStatus struct {
	Status string
	Reason string
}

func statusSequence(statuses ...string) (func(context.Context) (botStatus, error), *int) {
	calls := 0
	return func(context.Context) (botStatus, error) {
		idx := calls
		if idx >= len(statuses) {
			idx = len(statuses) - 1
		}
		calls++
		return botStatus{Status: statuses[idx], Reason: "intent missing"}, nil
	}, &calls
}

func pollPolicy(max int, s *recordingSleeper) Policy {
	return Policy{MaxAttempts: max, BaseDelay: time.Second, Multiplier: 2, Sleep: s.sleep}
}

func getStatus(b botStatus) string { return b.Status }
func getReason(b botStatus) string { return b.Reason }

func TestPoll_ReturnsOnceStatusLeavesPending(t *testing.T) {
	s := &recordingSleeper{}
	fetch, calls := statusSequence("BUILDING", "BUILDING", "READY")
	cond := WaitCondition{Field: "status", Pending: []string{"BUILDING"}, Failed: []string{"FAILED"}}

	out, err := Poll(context.Background(), nil, pollPolicy(8, s), cond, Call{Name: "GetBot"}, fetch, getStatus, getReason)
	require.NoError(t, err)
	require.Equal(t, "READY", out.Status)
	require.Equal(t, 3, *calls)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, s.waits)
}

func TestPoll_FailedStatusStopsImmediately(t *testing.T) {
	s := &recordingSleeper{}
	fetch, calls := statusSequence("FAILED", "READY")
	cond := WaitCondition{Field: "status", Pending: []string{"BUILDING"}, Failed: []string{"FAILED"}}

	_, err := Poll(context.Background(), nil, pollPolicy(8, s), cond, Call{Name: "GetBot"}, fetch, getStatus, getReason)
	var failed *RemoteFailedError
	require.ErrorAs(t, err, &failed)
	require.Equal(t, "FAILED", failed.Status)
	require.Equal(t, "intent missing", failed.Detail)
	require.Equal(t, 1, *calls)
	require.Empty(t, s.waits)
}

func TestPoll_EmptyFailedSetOnlyWaits(t *testing.T) {
	s := &recordingSleeper{}
	fetch, calls := statusSequence("1", "FAILED")
	cond := WaitCondition{Field: "version", Pending: []string{"1"}}

	out, err := Poll(context.Background(), nil, pollPolicy(8, s), cond, Call{Name: "GetBot"}, fetch, getStatus, nil)
	require.NoError(t, err)
	require.Equal(t, "FAILED", out.Status)
	require.Equal(t, 2, *calls)
}

func TestPoll_ExhaustedBudgetReportsStillPending(t *testing.T) {
	s := &recordingSleeper{}
	fetch, calls := statusSequence("IN_PROGRESS")
	cond := WaitCondition{Field: "importStatus", Pending: []string{"IN_PROGRESS"}, Failed: []string{"FAILED"}}

	_, err := Poll(context.Background(), nil, pollPolicy(8, s), cond, Call{Name: "GetImport"}, fetch, getStatus, nil)
	var pending *StillPendingError
	require.ErrorAs(t, err, &pending)
	require.Equal(t, 8, pending.Attempts)
	require.Equal(t, "IN_PROGRESS", pending.Status)
	require.Contains(t, err.Error(), "still \"IN_PROGRESS\" after 8 attempts")
	require.Equal(t, 8, *calls)
	require.Len(t, s.waits, 7)
}

func TestPoll_FetchErrorIsNotRetried(t *testing.T) {
	s := &recordingSleeper{}
	boom := errors.New("throttled")
	calls := 0
	_, err := Poll(context.Background(), nil, pollPolicy(8, s), WaitCondition{Field: "status", Pending: []string{"BUILDING"}},
		Call{Name: "GetBot"},
		func(context.Context) (botStatus, error) {
			calls++
			return botStatus{}, boom
		}, getStatus, nil)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
	require.Empty(t, s.waits)
}
