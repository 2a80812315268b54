package httpretry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Backoff selects how the delay grows between attempts.
type Backoff int

const (
	// Exponential waits BaseDelay * 2^(attempt-1).
	Exponential Backoff = iota
	// Linear waits BaseDelay * attempt.
	Linear
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Policy describes how many times and how patiently an operation is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Backoff     Backoff
	Sleep       Sleeper
}

// Delay returns the wait before the attempt following attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var d time.Duration
	switch p.Backoff {
	case Linear:
		d = p.BaseDelay * time.Duration(attempt)
	default:
		d = p.BaseDelay << (attempt - 1)
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// TransientError marks a failure worth retrying.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient failure (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err so Do retries it.
func Transient(err error, statusCode int) error {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient reports whether err was marked retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ShouldRetry reports whether an HTTP status is a transient condition.
func ShouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// IsTimeout reports whether err is a client-side deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Do runs op until it succeeds, returns a non-transient error, or the attempt
// budget is spent. The last error is returned unwrapped from TransientError.
func Do(ctx context.Context, p Policy, log zerolog.Logger, op func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := op(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsTransient(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		d := p.Delay(attempt)
		log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", attempts).
			Dur("backoff", d).Msg("transient failure, retrying")
		if err := sleep(ctx, d); err != nil {
			return err
		}
	}

	var te *TransientError
	if errors.As(lastErr, &te) {
		return te.Err
	}
	return lastErr
}
