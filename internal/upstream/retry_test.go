package upstream

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := Retry(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Fatalf("expected single call with permanent error, got calls=%d err=%v", calls, err)
	}
}

func TestRetryUnwrapsLastError(t *testing.T) {
	transient := errors.New("transient")
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return &RetryableError{Err: transient}
	})
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	var retryable *RetryableError
	if errors.As(err, &retryable) || !errors.Is(err, transient) {
		t.Fatalf("expected unwrapped transient error, got %v", err)
	}
}

func TestRetryStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, 10, time.Hour, func() error {
		calls++
		cancel()
		return &RetryableError{Err: errors.New("transient")}
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("expected context.Canceled after one call, got calls=%d err=%v", calls, err)
	}
}

func TestRetryDoublesDelay(t *testing.T) {
	var stamps []time.Time
	err := Retry(context.Background(), 3, 20*time.Millisecond, func() error {
		stamps = append(stamps, time.Now())
		if len(stamps) < 3 {
			return &RetryableError{Err: errors.New("transient")}
		}
		return nil
	})
	if err != nil || len(stamps) != 3 {
		t.Fatalf("expected success on third attempt, got calls=%d err=%v", len(stamps), err)
	}
	if gap := stamps[2].Sub(stamps[1]); gap < 35*time.Millisecond {
		t.Fatalf("second backoff should be ~40ms, got %s", gap)
	}
}
