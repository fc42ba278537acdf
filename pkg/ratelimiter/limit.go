package ratelimiter

import "time"

// Limit counts the requests of one caller within the current window.
type Limit struct {
	Created time.Time
	Key     string
	Hits    int
}

func newLimit(key string) *Limit {
	return &Limit{Created: time.Now(), Key: key, Hits: 0}
}

func (limit *Limit) Hit() {
	limit.Hits += 1
}

// ResetAt returns when the window of the limit ends.
func (limit *Limit) ResetAt(window time.Duration) time.Time {
	return limit.Created.Add(window)
}
