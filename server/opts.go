package server

import (
	"fmt"
	"time"

	"github.com/go-logr/logr"
)

func Logger(l logr.Logger) Opt {
	return func(s *PromotionServer) error {
		s.log = l
		return nil
	}
}

func ListenAddr(addr string) Opt {
	return func(s *PromotionServer) error {
		s.addr = addr
		return nil
	}
}

// WithRateLimit allows count requests per caller IP within interval.
func WithRateLimit(count int, interval time.Duration) Opt {
	return func(s *PromotionServer) error {
		if count < 1 {
			return fmt.Errorf("rate limit must be at least 1, got %d", count)
		}
		s.rateLimit = count
		s.rateLimitInterval = interval
		return nil
	}
}

// HMACKey makes the server reject requests without a valid X-Signature header.
func HMACKey(key []byte) Opt {
	return func(s *PromotionServer) error {
		s.hmacKey = key
		return nil
	}
}
