package usecase

import "time"

// TimeSource provides wall time and wake-ups to the scheduler.
type TimeSource interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemTime is the real clock.
type SystemTime struct{}

func (SystemTime) Now() time.Time { return time.Now() }

func (SystemTime) After(d time.Duration) <-chan time.Time { return time.After(d) }
