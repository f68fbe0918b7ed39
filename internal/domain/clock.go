package domain

import "time"

// Clock is the single source of "now". One instant is captured per operation
// and threaded through every check in that operation, so a request cannot see
// inconsistent rule evaluations.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
