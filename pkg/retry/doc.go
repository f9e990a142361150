// Package retry runs an operation in a bounded attempt loop.
//
// Retryable failures are decided by Config.RetryIf (DefaultRetryIf retries
// the transient error types of pkg/errors and nothing else typed). Between
// attempts Do sleeps for the backoff delay and logs a "retrying operation"
// warning carrying the delay. When the budget runs out Do returns an
// *ExhaustedError wrapping the last failure; a non-retryable error is
// returned as is, immediately.
//
//	err := retry.Do(func(attempt int) error {
//		return fetch(ctx)
//	}, &retry.Config{
//		MaxAttempts: 5,
//		Backoff:     &retry.ConstantBackoff{Delay: 5 * time.Second},
//		Context:     ctx,
//		Logger:      log,
//	})
package retry
