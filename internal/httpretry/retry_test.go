package httpretry_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"solarbill/internal/httpretry"
	"solarbill/internal/logger"
)

type sleeps struct {
	delays []time.Duration
}

func (s *sleeps) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func TestPolicy_Delay(t *testing.T) {
	exp := httpretry.Policy{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, exp.Delay(1))
	assert.Equal(t, 2*time.Second, exp.Delay(2))
	assert.Equal(t, 4*time.Second, exp.Delay(3))
	assert.Equal(t, 5*time.Second, exp.Delay(4))
	assert.Equal(t, time.Second, exp.Delay(0))

	lin := httpretry.Policy{BaseDelay: time.Second, Backoff: httpretry.Linear}
	assert.Equal(t, 3*time.Second, lin.Delay(3))
}

func TestDo_RetriesTransientFailures(t *testing.T) {
	s := &sleeps{}
	p := httpretry.Policy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, Sleep: s.sleep}

	calls := 0
	err := httpretry.Do(context.Background(), p, logger.Nop(), func(attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		if attempt < 3 {
			return httpretry.Transient(errors.New("busy"), http.StatusServiceUnavailable)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, s.delays)
}

func TestDo_ExhaustionReturnsUnwrappedError(t *testing.T) {
	cause := errors.New("still busy")
	s := &sleeps{}
	p := httpretry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Sleep: s.sleep}

	calls := 0
	err := httpretry.Do(context.Background(), p, logger.Nop(), func(int) error {
		calls++
		return httpretry.Transient(cause, http.StatusTooManyRequests)
	})

	assert.Same(t, cause, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, s.delays, 1)
}

func TestDo_TerminalErrorStopsImmediately(t *testing.T) {
	terminal := errors.New("bad request")
	calls := 0
	err := httpretry.Do(context.Background(), httpretry.Policy{MaxAttempts: 5}, logger.Nop(), func(int) error {
		calls++
		return terminal
	})
	assert.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := httpretry.Policy{MaxAttempts: 3, BaseDelay: time.Hour}

	err := httpretry.Do(ctx, p, logger.Nop(), func(int) error {
		return httpretry.Transient(errors.New("busy"), 0)
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestShouldRetry(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, httpretry.ShouldRetry(code), code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		assert.False(t, httpretry.ShouldRetry(code), code)
	}
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, httpretry.IsTimeout(context.DeadlineExceeded))
	assert.True(t, httpretry.IsTimeout(errors.Join(errors.New("calling api"), context.DeadlineExceeded)))
	assert.False(t, httpretry.IsTimeout(errors.New("connection refused")))
	assert.False(t, httpretry.IsTransient(errors.New("x")))
	assert.True(t, httpretry.IsTransient(httpretry.Transient(errors.New("x"), 0)))
}
