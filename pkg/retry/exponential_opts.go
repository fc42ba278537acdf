package retry

import "time"

type ExponentialWith func(opt *ExponentialOptions)

func WithRetries(retries int) ExponentialWith {
	return func(opt *ExponentialOptions) {
		opt.retries = retries
	}
}

func WithDelayBase(delay time.Duration) ExponentialWith {
	return func(opt *ExponentialOptions) {
		opt.delayBase = delay
	}
}

func WithFactor(factor float64) ExponentialWith {
	return func(opt *ExponentialOptions) {
		opt.factor = factor
	}
}

func WithMaxDelay(max time.Duration) ExponentialWith {
	return func(opt *ExponentialOptions) {
		opt.maxDelay = max
	}
}

func WithErrorHandler(errorHandlerFn ErrorHandlerFn) ExponentialWith {
	return func(opt *ExponentialOptions) {
		opt.errorHandlerFn = errorHandlerFn
	}
}

func WithFn(fn RetryFn) ExponentialWith {
	return func(opt *ExponentialOptions) {
		opt.fn = fn
	}
}
