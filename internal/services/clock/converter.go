package clock

import (
	"time"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
)

const (
	DefaultGrace           = 5 * time.Minute
	DefaultRelevancePast   = 5 * time.Minute
	DefaultRelevanceFuture = 10 * time.Minute
)

// Converter maps exchange-clock times of day to absolute instants.
// The exchange clock runs at local time plus a signed offset.
type Converter struct {
	local  *time.Location
	offset time.Duration
	grace  time.Duration
	past   time.Duration
	future time.Duration
}

// Option configures a Converter.
type Option func(*Converter)

// WithLocation sets the host local time zone. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(c *Converter) {
		if loc != nil {
			c.local = loc
		}
	}
}

// WithGrace sets how far in the past a due time still fires immediately.
func WithGrace(d time.Duration) Option {
	return func(c *Converter) { c.grace = d }
}

// WithRelevanceWindow sets the window around now in which an entry time is actionable.
func WithRelevanceWindow(past, future time.Duration) Option {
	return func(c *Converter) {
		c.past = past
		c.future = future
	}
}

// New creates a Converter for an exchange running offsetMinutes ahead of local time.
func New(offsetMinutes int, opts ...Option) *Converter {
	c := &Converter{
		local:  time.Local,
		offset: time.Duration(offsetMinutes) * time.Minute,
		grace:  DefaultGrace,
		past:   DefaultRelevancePast,
		future: DefaultRelevanceFuture,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Grace returns the late-fire tolerance.
func (c *Converter) Grace() time.Duration { return c.grace }

// Location returns the host local zone.
func (c *Converter) Location() *time.Location { return c.local }

// ExchangeNow returns ref expressed as exchange wall time. The zone of the
// result is the local zone, only the wall reading is meaningful.
func (c *Converter) ExchangeNow(ref time.Time) time.Time {
	return ref.In(c.local).Add(c.offset)
}

// ToAbsolute places t on the exchange calendar day containing ref.
func (c *Converter) ToAbsolute(t models.TimeOfDay, ref time.Time) time.Time {
	wall := c.ExchangeNow(ref)
	y, m, d := wall.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, c.local).Add(-c.offset)
}

// Nearest returns the occurrence of t closest to now, within twelve hours either side.
func (c *Converter) Nearest(t models.TimeOfDay, now time.Time) time.Time {
	at := c.ToAbsolute(t, now)
	switch diff := at.Sub(now); {
	case diff > 12*time.Hour:
		at = at.AddDate(0, 0, -1)
	case diff < -12*time.Hour:
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// IsStillRelevant reports whether the nearest occurrence of t lies in [now-past, now+future].
func (c *Converter) IsStillRelevant(t models.TimeOfDay, now time.Time) bool {
	diff := c.Nearest(t, now).Sub(now)
	return diff >= -c.past && diff <= c.future
}

// ResolveOccurrence picks the instant a leg scheduled at t should fire.
// Up to grace in the past fires now, older rolls to the next day, future is kept.
func (c *Converter) ResolveOccurrence(t models.TimeOfDay, now time.Time) time.Time {
	at := c.Nearest(t, now)
	age := now.Sub(at)
	switch {
	case age < 0:
		return at
	case age <= c.grace:
		return now
	default:
		return at.AddDate(0, 0, 1)
	}
}

// DayKey returns the exchange calendar date of now as YYYY-MM-DD.
func (c *Converter) DayKey(now time.Time) string {
	return c.ExchangeNow(now).Format("2006-01-02")
}
