package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "tumblrsync/pkg/errors"
	"tumblrsync/pkg/logger"
)

func fastConfig(maxAttempts int) *Config {
	return &Config{
		MaxAttempts: maxAttempts,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		RetryIf:     DefaultRetryIf,
		Context:     context.Background(),
	}
}

func TestConstantBackoff(t *testing.T) {
	backoff := &ConstantBackoff{Delay: 5 * time.Second}
	assert.Equal(t, time.Duration(0), backoff.NextDelay(0))
	for attempt := 1; attempt <= 5; attempt++ {
		assert.Equal(t, 5*time.Second, backoff.NextDelay(attempt))
	}
}

func TestRetryWithSuccess(t *testing.T) {
	attempts := 0
	err := Do(func(attempt int) error {
		attempts++
		assert.Equal(t, attempts, attempt)
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	}, fastConfig(5))

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsBudget(t *testing.T) {
	attempts := 0
	transient := errs.New(errs.ErrorTypeServerError, 503, "unexpected status")

	err := Do(func(int) error {
		attempts++
		return transient
	}, fastConfig(5))

	assert.Equal(t, 5, attempts)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 5, exhausted.Attempts)
	assert.ErrorIs(t, err, transient)
}

func TestRetryWithNonRetryableError(t *testing.T) {
	attempts := 0
	authError := errs.New(errs.ErrorTypeAuth, 401, "unauthorized")

	err := Do(func(int) error {
		attempts++
		return authError
	}, fastConfig(5))

	assert.Same(t, authError, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryLogsWaitDuration(t *testing.T) {
	tl := logger.NewTestLogger()
	cfg := fastConfig(3)
	cfg.Backoff = &ConstantBackoff{Delay: 2 * time.Millisecond}
	cfg.Logger = tl

	var delays []time.Duration
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		delays = append(delays, delay)
	}

	_ = Do(func(int) error { return errs.New(errs.ErrorTypeEmptyBody, 200, "no data received") }, cfg)

	warnings := tl.GetMessagesByLevel("WARN")
	require.Len(t, warnings, 2, "no wait after the final attempt")
	assert.Equal(t, "retrying operation", warnings[0].Message)
	assert.Equal(t, int64(2), warnings[0].Fields["delay_ms"])
	assert.Equal(t, []time.Duration{2 * time.Millisecond, 2 * time.Millisecond}, delays)
	assert.True(t, tl.HasMessage("max retry attempts exceeded"))
}

func TestRetryWithContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	cfg := fastConfig(5)
	cfg.Backoff = &ConstantBackoff{Delay: time.Hour}
	cfg.Context = ctx

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Do(func(int) error {
		attempts++
		return errors.New("temporary error")
	}, cfg)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDefaultRetryIf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", errs.New(errs.ErrorTypeNetwork, 0, "reset"), true},
		{"timeout", errs.New(errs.ErrorTypeTimeout, 0, "deadline"), true},
		{"size mismatch", errs.New(errs.ErrorTypeSizeMismatch, 200, "short write"), true},
		{"auth", errs.New(errs.ErrorTypeAuth, 401, "unauthorized"), false},
		{"fatal", errs.Fatal("request failed", nil), false},
		{"canceled", context.Canceled, false},
		{"untyped", errors.New("something"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultRetryIf(tt.err))
		})
	}
}

func TestDoWithResult(t *testing.T) {
	got, err := DoWithResult(func(attempt int) (string, error) {
		if attempt == 1 {
			return "", errs.New(errs.ErrorTypeRateLimit, 429, "slow down")
		}
		return "body", nil
	}, fastConfig(5))

	require.NoError(t, err)
	assert.Equal(t, "body", got)
}
