package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Direction is the side of a binary option trade.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Valid reports whether d is BUY or SELL.
func (d Direction) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// TimeOfDay is a wall-clock time on the exchange clock with minute resolution.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// ParseTimeOfDay parses "H:MM" or "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || len(m) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	t := TimeOfDay{Hour: hour, Minute: minute}
	if !t.Valid() {
		return TimeOfDay{}, fmt.Errorf("time of day out of range %q", s)
	}
	return t, nil
}

// Valid reports whether the hour and minute are in range.
func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Signal is a parsed trade instruction taken from one chat message.
type Signal struct {
	Pair            string      `json:"pair"`
	Direction       Direction   `json:"direction"`
	ExpiryMinutes   int         `json:"expiry_minutes"`
	EntryTime       TimeOfDay   `json:"entry_time"`
	ReEntryTimes    []TimeOfDay `json:"re_entry_times"`
	SourceMessageID string      `json:"source_message_id"`
	// ReceivedAt is the instant the source message was sent. Zero when unknown.
	ReceivedAt time.Time `json:"received_at"`
}

// Expiry returns the option expiry as a duration.
func (s Signal) Expiry() time.Duration {
	return time.Duration(s.ExpiryMinutes) * time.Minute
}

// Message is a chat message delivered by a source, either new or edited.
type Message struct {
	ID     string    `json:"id"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
	Edited bool      `json:"edited"`
	Source string    `json:"source"`
}
