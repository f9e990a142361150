// Package ratelimit spaces out requests sent to the Tumblr API.
//
// Interval is built on golang.org/x/time/rate with a burst of one, which
// yields a fixed minimum gap between the starts of consecutive requests,
// measured from the previous request rather than from process start:
//
//	limiter := ratelimit.NewInterval(2 * time.Second)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
//	// issue the request
//
// Unlimited satisfies the same Limiter interface and is used by tests.
package ratelimit
