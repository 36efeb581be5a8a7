package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
)

func tod(h, m int) models.TimeOfDay { return models.TimeOfDay{Hour: h, Minute: m} }

func TestParse_FullSignal(t *testing.T) {
	text := "🔥 EUR/USD OTC\n🟢 BUY\n⏳ EXPIRATION 5m\n⏰ ENTRY at 14:00\n\n1st LEVEL at 14:05\n2nd LEVEL at 14:10"

	sig, ok := Parse(text)
	require.True(t, ok)
	assert.Equal(t, "EUR/USD", sig.Pair)
	assert.Equal(t, models.DirectionBuy, sig.Direction)
	assert.Equal(t, 5, sig.ExpiryMinutes)
	assert.Equal(t, tod(14, 0), sig.EntryTime)
	assert.Equal(t, []models.TimeOfDay{tod(14, 5), tod(14, 10)}, sig.ReEntryTimes)
}

func TestParse_SingleLine(t *testing.T) {
	sig, ok := Parse("EUR/USD BUY EXPIRATION 5m ENTRY 14:00 LEVEL 14:05 LEVEL 14:10")
	require.True(t, ok)
	assert.Equal(t, tod(14, 0), sig.EntryTime)
	assert.Equal(t, []models.TimeOfDay{tod(14, 5), tod(14, 10)}, sig.ReEntryTimes)
}

func TestParse_Defaults(t *testing.T) {
	sig, ok := Parse("gbp/jpy sell 9:05")
	require.True(t, ok)
	assert.Equal(t, "GBP/JPY", sig.Pair)
	assert.Equal(t, models.DirectionSell, sig.Direction)
	assert.Equal(t, DefaultExpiryMinutes, sig.ExpiryMinutes)
	assert.Equal(t, tod(9, 5), sig.EntryTime)
	assert.Empty(t, sig.ReEntryTimes)
}

func TestParse_LastDirectionWins(t *testing.T) {
	sig, ok := Parse("USD/CAD\nBUY\nchanged to SELL\nENTRY 10:30")
	require.True(t, ok)
	assert.Equal(t, models.DirectionSell, sig.Direction)
}

func TestParse_LevelEqualToEntryIsDropped(t *testing.T) {
	sig, ok := Parse("AUD/USD BUY\nENTRY 10:30\nLEVEL 10:30\nLEVEL 10:35")
	require.True(t, ok)
	assert.Equal(t, []models.TimeOfDay{tod(10, 35)}, sig.ReEntryTimes)
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"summary":      "EUR/USD BUY 14:00 SESSION FINISHED 9 WINS",
		"report":       "Daily report EUR/USD BUY 14:00",
		"follow":       "follow me EUR/USD BUY 14:00",
		"no pair":      "BUY now at 14:00",
		"no direction": "EUR/USD at 14:00",
		"no time":      "EUR/USD BUY",
		"zero expiry":  "EUR/USD BUY\nEXPIRATION 0m\nENTRY 14:00",
		"invalid time": "EUR/USD BUY ENTRY 25:70",
		"empty":        "",
		"only emoji":   "🔥🔥🔥",
		"rebuy":        "EUR/USD REBUY 14:00",
		"buyer":        "EUR/USD BUYER\nENTRY 14:00",
		"seller":       "EUR/USD SELLERS\nENTRY 14:00",
		"huge expiry":  "EUR/USD BUY\nEXPIRATION 99999999999999999999m\nENTRY 14:00",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := Parse(text)
			assert.False(t, ok)
		})
	}
}

func TestParse_ReEntryLineDoesNotMoveEntry(t *testing.T) {
	sig, ok := Parse("EUR/USD OTC\nBUY\nENTRY 14:00\n1ST RE-ENTRY LEVEL 14:05\nREENTRY LEVEL 14:10")
	require.True(t, ok)
	assert.Equal(t, tod(14, 0), sig.EntryTime)
	assert.Equal(t, []models.TimeOfDay{tod(14, 5), tod(14, 10)}, sig.ReEntryTimes)
}

func TestNormalize(t *testing.T) {
	in := "  \U0001F525EUR/USD\u200b  BUY \r\n\r\n ENTRY  14:00\ufe0f  "
	assert.Equal(t, "EUR/USD BUY\nENTRY 14:00", Normalize(in))
}

func TestParseMessage(t *testing.T) {
	sent := time.Date(2026, 10, 14, 9, 0, 0, 0, time.FixedZone("X", 3600))
	sig, ok := ParseMessage(models.Message{ID: "m-1", Text: "EUR/USD BUY 14:00", SentAt: sent})
	require.True(t, ok)
	assert.Equal(t, "m-1", sig.SourceMessageID)
	assert.Equal(t, sent.UTC(), sig.ReceivedAt)

	_, ok = ParseMessage(models.Message{ID: "m-2", Text: "hello"})
	assert.False(t, ok)
}
