package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow reports whether a request may start now, consuming the slot if so
	Allow() bool
	// Wait blocks until the next request may start or ctx is done
	Wait(ctx context.Context) error
	// Reset forgets the previous request
	Reset()
}

// Interval enforces a minimum spacing between request starts. The first
// request goes through immediately; each following one waits until
// interval has passed since the previous one started.
type Interval struct {
	mu       sync.Mutex
	interval time.Duration
	lim      *rate.Limiter

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewInterval creates a limiter spacing request starts by at least interval
func NewInterval(interval time.Duration) *Interval {
	return &Interval{
		interval: interval,
		lim:      newRateLimiter(interval),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

func newRateLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Allow consumes the slot if the interval has elapsed
func (iv *Interval) Allow() bool {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return iv.lim.AllowN(iv.now(), 1)
}

// Wait reserves the next slot and sleeps until it opens. A cancelled wait
// gives the slot back.
func (iv *Interval) Wait(ctx context.Context) error {
	iv.mu.Lock()
	now := iv.now()
	r := iv.lim.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	iv.mu.Unlock()

	if delay <= 0 {
		return nil
	}
	if err := iv.sleep(ctx, delay); err != nil {
		r.CancelAt(iv.now())
		return err
	}
	return nil
}

// Reset lets the next request through immediately
func (iv *Interval) Reset() {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	iv.lim = newRateLimiter(iv.interval)
}

// Interval returns the configured spacing
func (iv *Interval) Interval() time.Duration {
	return iv.interval
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlimited never makes a caller wait
type Unlimited struct{}

func (Unlimited) Allow() bool                    { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset()                         {}

var (
	_ Limiter = (*Interval)(nil)
	_ Limiter = Unlimited{}
)
