package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

type RetryError struct {
	message string
}

func (e RetryError) Error() string {
	return e.message
}

type RetryFn func(ctx context.Context) error
type ErrorHandlerFn func(error) bool

type ExponentialOptions struct {
	retries        int
	delayBase      time.Duration
	factor         float64
	maxDelay       time.Duration
	fn             RetryFn
	errorHandlerFn ErrorHandlerFn
}

// Exponential calls fn until it succeeds, the error handler accepts its error or the retries are used up. The
// n-th wait is delayBase*factor^(n-1), capped at maxDelay. Waiting stops early when ctx is done.
//
// Only use it for idempotent reads; state changing calls against the promotion service must not be retried.
func Exponential(ctx context.Context, withOpts ...ExponentialWith) error {
	opts := ExponentialOptions{
		retries:   3,
		delayBase: time.Second,
		factor:    2,
		maxDelay:  30 * time.Second,
	}

	for _, fn := range withOpts {
		fn(&opts)
	}

	if opts.fn == nil {
		return RetryError{message: "fn is not defined, nothing to retry"}
	}

	var (
		err error
		try int = 0
	)

	for {
		try++

		wait := time.Duration(float64(opts.delayBase) * math.Pow(opts.factor, float64(try-1)))
		if wait > opts.maxDelay {
			wait = opts.maxDelay
		}

		err = opts.fn(ctx)
		if err == nil {
			return nil
		}

		if opts.errorHandlerFn != nil && opts.errorHandlerFn(err) {
			return nil
		}

		if try >= opts.retries {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("gave up after %d attempts: %w", try, ctx.Err())
		case <-time.After(wait):
		}
	}

	return err
}
