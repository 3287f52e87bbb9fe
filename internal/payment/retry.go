package payment

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"
)

// IsRetryable reports whether a gateway error is worth another attempt.
// Provider outages and network blips are; declined cards and bad requests
// never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrProviderDown) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}

// RetryPolicy retries a gateway call with exponential backoff while the
// error stays retryable.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}
}

// Do runs fn up to MaxAttempts times. Non-retryable errors and context
// cancellation stop immediately.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	delay := p.BaseDelay
	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err = fn(); err == nil || !IsRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
