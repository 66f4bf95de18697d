package backoff

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultMaxRetries   = 10
	DefaultInitialDelay = 2 * time.Second
)

var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Executor retries an operation while the portal answers with HTTP 429.
// Delays double from InitialDelay on every attempt, without jitter.
type Executor struct {
	MaxRetries   int
	InitialDelay time.Duration

	Sleep   func(ctx context.Context, d time.Duration) error
	OnRetry func(attempt int, delay time.Duration, err error)
}

func New(maxRetries int, initialDelay time.Duration) *Executor {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if initialDelay < 0 {
		initialDelay = DefaultInitialDelay
	}
	return &Executor{
		MaxRetries:   maxRetries,
		InitialDelay: initialDelay,
		Sleep:        Sleep,
	}
}

// Delay returns the wait before the call that follows a rate-limited attempt.
func (e *Executor) Delay(attempt int) time.Duration {
	return e.InitialDelay * time.Duration(1<<uint(attempt))
}

// Do calls op until it succeeds, fails with a non rate-limit error, or the
// retry budget is spent.
func Do[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	var zero T
	sleep := e.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	for attempt := 0; attempt < e.MaxRetries; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !IsRateLimited(err) {
			return zero, err
		}
		if attempt == e.MaxRetries-1 {
			return zero, fmt.Errorf("%w after %d attempts: %v", ErrMaxRetriesExceeded, e.MaxRetries, err)
		}

		d := e.Delay(attempt)
		if e.OnRetry != nil {
			e.OnRetry(attempt, d, err)
		}
		if err := sleep(ctx, d); err != nil {
			return zero, err
		}
	}
	return zero, ErrMaxRetriesExceeded
}

// rateLimitPhrases are matched when an error carries no HTTPStatus method.
// Bare digits never count.
var rateLimitPhrases = []string{"Status: 429", "status 429", "429 Too Many Requests"}

// IsRateLimited reports whether err signals HTTP 429, either through an
// HTTPStatus method anywhere in the chain or a status phrase in the message.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var st interface{ HTTPStatus() int }
	if errors.As(err, &st) {
		return st.HTTPStatus() == http.StatusTooManyRequests
	}
	msg := err.Error()
	for _, p := range rateLimitPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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
