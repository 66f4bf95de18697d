package backoff

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type statusErr int

func (s statusErr) Error() string   { return fmt.Sprintf("status %d", int(s)) }
func (s statusErr) HTTPStatus() int { return int(s) }

type recorder struct {
	delays []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func newTestExecutor(max int, initial time.Duration) (*Executor, *recorder) {
	rec := &recorder{}
	e := New(max, initial)
	e.Sleep = rec.sleep
	return e, rec
}

func Test_Do_SuccessFirstCall(t *testing.T) {
	e, rec := newTestExecutor(10, 2*time.Second)
	calls := 0
	v, err := Do(context.Background(), e, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", v)
	require.Equal(t, 1, calls)
	require.Empty(t, rec.delays)
}

func Test_Do_RetriesRateLimitWithDoublingDelays(t *testing.T) {
	e, rec := newTestExecutor(10, 2*time.Second)
	calls := 0
	v, err := Do(context.Background(), e, func(context.Context) (int, error) {
		calls++
		if calls <= 3 {
			return 0, statusErr(429)
		}
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 4, calls)
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, rec.delays)
}

func Test_Do_ExhaustsBudgetWithoutExtraCall(t *testing.T) {
	e, rec := newTestExecutor(5, 100*time.Millisecond)
	calls := 0
	_, err := Do(context.Background(), e, func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, statusErr(429)
	})
	require.ErrorIs(t, err, ErrMaxRetriesExceeded)
	require.Equal(t, 5, calls)
	require.Len(t, rec.delays, 4)
	for i, d := range rec.delays {
		require.Equal(t, e.InitialDelay*time.Duration(1<<i), d)
	}
}

func Test_Do_OtherErrorIsTerminal(t *testing.T) {
	e, rec := newTestExecutor(10, time.Second)
	calls := 0
	boom := errors.New("boom")
	_, err := Do(context.Background(), e, func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
	require.Empty(t, rec.delays)

	calls = 0
	_, err = Do(context.Background(), e, func(context.Context) (int, error) {
		calls++
		return 0, statusErr(500)
	})
	require.EqualError(t, err, "status 500")
	require.Equal(t, 1, calls)
}

func Test_Do_MessageBasedDetection(t *testing.T) {
	e, rec := newTestExecutor(3, time.Millisecond)
	calls := 0
	_, err := Do(context.Background(), e, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("HTTP error! Status: 429")
		}
		return 1, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Len(t, rec.delays, 1)
}

func Test_Do_OnRetryHook(t *testing.T) {
	e, _ := newTestExecutor(3, time.Second)
	var attempts []int
	e.OnRetry = func(attempt int, d time.Duration, err error) {
		attempts = append(attempts, attempt)
		require.Equal(t, e.Delay(attempt), d)
		require.True(t, IsRateLimited(err))
	}
	_, err := Do(context.Background(), e, func(context.Context) (int, error) {
		return 0, statusErr(429)
	})
	require.ErrorIs(t, err, ErrMaxRetriesExceeded)
	require.Equal(t, []int{0, 1}, attempts)
}

func Test_Do_SleepCanceled(t *testing.T) {
	e := New(10, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, e, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, statusErr(429)
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func Test_IsRateLimited(t *testing.T) {
	require.False(t, IsRateLimited(nil))
	require.True(t, IsRateLimited(statusErr(429)))
	require.True(t, IsRateLimited(fmt.Errorf("orders page: %w", statusErr(429))))
	require.False(t, IsRateLimited(statusErr(404)))
	require.False(t, IsRateLimited(errors.New("timeout")))
	require.True(t, IsRateLimited(errors.New("HTTP error! Status: 429")))
	require.True(t, IsRateLimited(errors.New("upstream: 429 Too Many Requests")))
}

func Test_IsRateLimited_DigitsAloneDoNotMatch(t *testing.T) {
	for _, msg := range []string{
		"dial tcp 10.0.0.7:4290: connect: connection refused",
		"order 1429 not found",
		"read 4291 bytes",
	} {
		require.False(t, IsRateLimited(errors.New(msg)), msg)
	}
}

func Test_Do_PortLikeErrorIsTerminal(t *testing.T) {
	e, rec := newTestExecutor(5, time.Second)
	calls := 0
	_, err := Do(context.Background(), e, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("dial tcp 10.0.0.7:4290: connect: connection refused")
	})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrMaxRetriesExceeded)
	require.Equal(t, 1, calls)
	require.Empty(t, rec.delays)
}

func Test_New_Defaults(t *testing.T) {
	e := New(0, -1)
	require.Equal(t, DefaultMaxRetries, e.MaxRetries)
	require.Equal(t, DefaultInitialDelay, e.InitialDelay)
	require.Equal(t, 2*time.Second, e.Delay(0))
	require.Equal(t, 16*time.Second, e.Delay(3))
}
