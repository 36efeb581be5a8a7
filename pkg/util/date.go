package util

import (
	"strconv"
	"strings"
	"time"
)

// DateTimeLayout is the naive "YYYY-MM-DD HH:MM:SS" form, read as UTC.
const DateTimeLayout = "2006-01-02 15:04:05"

// ParseTime tries RFC3339 (with or without fraction), DateTimeLayout, and
// unix seconds or milliseconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation(DateTimeLayout, s, time.UTC); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		// anything past year 2286 in seconds is a millisecond stamp
		if ts > 1e10 {
			return time.UnixMilli(ts), true
		}
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}
