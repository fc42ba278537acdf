package retry_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/weaveworks/apptrust-promoter/pkg/retry"
)

func failing(_ context.Context) error {
	return fmt.Errorf("stage not visible yet")
}

func TestExponential(t *testing.T) {
	tests := []struct {
		name              string
		opts              []retry.ExponentialWith
		wantErr           bool
		numberOfErrCalled int
		minTime           time.Duration
		maxTime           time.Duration
	}{
		{
			name:              "with defaults",
			opts:              []retry.ExponentialWith{},
			wantErr:           true,
			numberOfErrCalled: 0,
			maxTime:           100 * time.Millisecond,
		},
		{
			name: "with fn",
			opts: []retry.ExponentialWith{
				retry.WithFn(failing),
				retry.WithDelayBase(50 * time.Millisecond),
				retry.WithMaxDelay(80 * time.Millisecond),
			},
			wantErr:           true,
			numberOfErrCalled: 3,
			// waits 50ms and 80ms (capped)
			minTime: 130 * time.Millisecond,
			maxTime: 2 * time.Second,
		},
		{
			name: "with error handler",
			opts: []retry.ExponentialWith{
				retry.WithFn(failing),
				retry.WithErrorHandler(func(e error) bool {
					return true
				}),
				retry.WithDelayBase(time.Second),
			},
			wantErr:           false,
			numberOfErrCalled: 0,
			maxTime:           500 * time.Millisecond,
		},
		{
			name: "no retry",
			opts: []retry.ExponentialWith{
				retry.WithFn(failing),
				retry.WithRetries(0),
			},
			wantErr:           true,
			numberOfErrCalled: 1,
			maxTime:           500 * time.Millisecond,
		},
		{
			name: "succeeds eventually",
			opts: func() []retry.ExponentialWith {
				calls := 0
				return []retry.ExponentialWith{
					retry.WithFn(func(_ context.Context) error {
						calls++
						if calls < 3 {
							return fmt.Errorf("not yet")
						}
						return nil
					}),
					retry.WithDelayBase(0),
					retry.WithRetries(5),
				}
			}(),
			wantErr:           false,
			numberOfErrCalled: 2,
			maxTime:           500 * time.Millisecond,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errCalled := 0
			errFn := func(_ error) bool {
				errCalled++
				return false
			}
			start := time.Now()
			// Make sure it's called first and allow test case to override this.
			opts := []retry.ExponentialWith{retry.WithErrorHandler(errFn)}
			opts = append(opts, tt.opts...)
			if err := retry.Exponential(context.Background(), opts...); (err != nil) != tt.wantErr {
				t.Errorf("Exponential() error = %v, wantErr %v", err, tt.wantErr)
			}
			execTime := time.Since(start)
			if tt.minTime != 0 && execTime < tt.minTime {
				t.Errorf("Exponential() expected to run longer then %s, done in %s", tt.minTime, execTime)
			}
			if tt.maxTime != 0 && execTime > tt.maxTime {
				t.Errorf("Exponential() expected to be done under %s, done in %s", tt.maxTime, execTime)
			}
			if errCalled != tt.numberOfErrCalled {
				t.Errorf("Error handler of Exponential() expected to be called %d times, it was called %d times", tt.numberOfErrCalled, errCalled)
			}
		})
	}
}

func TestExponentialStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := retry.Exponential(ctx, retry.WithFn(failing), retry.WithDelayBase(10*time.Second), retry.WithRetries(5))
	if err == nil {
		t.Fatal("expected an error")
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("Exponential() didn't stop on context cancellation")
	}
}
