package parser

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
)

// DefaultExpiryMinutes applies when no EXPIRATION line is present.
const DefaultExpiryMinutes = 5

var (
	pairRe   = regexp.MustCompile(`[A-Z]{3}/[A-Z]{3}`)
	timeRe   = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	expiryRe = regexp.MustCompile(`(\d+)\s*M`)
	buyRe    = regexp.MustCompile(`\bBUY\b`)
	sellRe   = regexp.MustCompile(`\bSELL\b`)
)

// summaryMarkers flag recap and promo posts that must never be traded
var summaryMarkers = []string{
	"REPORT",
	"SESSION",
	"FINISHED",
	"ACCURACY",
	"TESTIMONIAL",
	"CONTACT SUPPORT",
	"FOLLOW ME",
}

// Parse extracts a signal from free-form chat text.
// The second return is false when the text is not a tradeable signal.
func Parse(text string) (models.Signal, bool) {
	norm := Normalize(text)
	if norm == "" {
		return models.Signal{}, false
	}
	upper := strings.ToUpper(norm)
	for _, m := range summaryMarkers {
		if strings.Contains(upper, m) {
			return models.Signal{}, false
		}
	}

	pair := pairRe.FindString(upper)
	if pair == "" {
		return models.Signal{}, false
	}

	var (
		dir     models.Direction
		expiry  = DefaultExpiryMinutes
		entry   models.TimeOfDay
		hasTime bool
		levels  []models.TimeOfDay
	)
	for _, line := range strings.Split(upper, "\n") {
		if buyRe.MatchString(line) {
			dir = models.DirectionBuy
		}
		if sellRe.MatchString(line) {
			dir = models.DirectionSell
		}
		if strings.Contains(line, "EXPIRATION") {
			n, found, valid := expiryAfter(line, strings.Index(line, "EXPIRATION"))
			if found && !valid {
				return models.Signal{}, false
			}
			if found {
				expiry = n
			}
		}
		if idx := entryIndex(line); idx >= 0 {
			if t, ok := timeIn(line[idx:]); ok {
				entry, hasTime = t, true
			} else if t, ok := timeIn(line); ok {
				entry, hasTime = t, true
			}
		}
		levels = append(levels, levelTimes(line)...)
	}

	if !dir.Valid() || expiry <= 0 {
		return models.Signal{}, false
	}
	if !hasTime {
		t, ok := timeIn(upper)
		if !ok {
			return models.Signal{}, false
		}
		entry = t
	}

	reEntries := make([]models.TimeOfDay, 0, len(levels))
	for _, l := range levels {
		if l != entry {
			reEntries = append(reEntries, l)
		}
	}

	return models.Signal{
		Pair:          pair,
		Direction:     dir,
		ExpiryMinutes: expiry,
		EntryTime:     entry,
		ReEntryTimes:  reEntries,
	}, true
}

// ParseMessage parses msg and stamps the result with the message identity.
func ParseMessage(msg models.Message) (models.Signal, bool) {
	sig, ok := Parse(msg.Text)
	if !ok {
		return models.Signal{}, false
	}
	sig.SourceMessageID = msg.ID
	sig.ReceivedAt = msg.SentAt.UTC()
	return sig, true
}

// Normalize strips pictographs and invisible characters, unifies line
// breaks and collapses whitespace. Empty lines are dropped.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\r' || r == '\u2028' || r == '\u2029' || r == '\u0085':
			b.WriteRune('\n')
		case r == '\n':
			b.WriteRune(r)
		case isInvisible(r) || isPictograph(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}

	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, ln := range lines {
		ln = strings.Join(strings.Fields(ln), " ")
		if ln != "" {
			out = append(out, ln)
		}
	}
	return strings.Join(out, "\n")
}

func isInvisible(r rune) bool {
	switch r {
	case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff', '\u00ad':
		return true
	}
	return unicode.Is(unicode.Variation_Selector, r) || unicode.Is(unicode.Cf, r)
}

func isPictograph(r rune) bool {
	return unicode.Is(unicode.So, r) || unicode.Is(unicode.Sk, r) || (r >= 0x1F000 && r <= 0x1FAFF)
}

// timeIn returns the first valid HH:MM token in s.
func timeIn(s string) (models.TimeOfDay, bool) {
	for _, m := range timeRe.FindAllStringSubmatch(s, -1) {
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		t := models.TimeOfDay{Hour: h, Minute: mi}
		if t.Valid() {
			return t, true
		}
	}
	return models.TimeOfDay{}, false
}

// expiryAfter reports the minutes token on line, whether one was found and
// whether its digits fit an int.
func expiryAfter(line string, from int) (n int, found, valid bool) {
	m := expiryRe.FindStringSubmatch(line[from:])
	if m == nil {
		m = expiryRe.FindStringSubmatch(line)
	}
	if m == nil {
		return 0, false, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, true, false
	}
	return n, true, true
}

// entryIndex returns the last ENTRY keyword on line that is not part of
// RE-ENTRY or REENTRY, or -1.
func entryIndex(line string) int {
	for end := len(line); end > 0; {
		i := strings.LastIndex(line[:end], "ENTRY")
		if i < 0 {
			return -1
		}
		prefix := line[:i]
		if !strings.HasSuffix(prefix, "RE-") && !strings.HasSuffix(prefix, "RE") {
			return i
		}
		end = i
	}
	return -1
}

// levelTimes takes one time per LEVEL keyword, read from the segment
// that runs up to the next keyword.
func levelTimes(line string) []models.TimeOfDay {
	var idxs []int
	for off := 0; ; {
		i := strings.Index(line[off:], "LEVEL")
		if i < 0 {
			break
		}
		idxs = append(idxs, off+i)
		off += i + len("LEVEL")
	}
	if len(idxs) == 0 {
		return nil
	}

	var out []models.TimeOfDay
	for k, start := range idxs {
		end := len(line)
		if k+1 < len(idxs) {
			end = idxs[k+1]
		}
		if t, ok := timeIn(line[start:end]); ok {
			out = append(out, t)
		}
	}
	if len(out) == 0 && len(idxs) == 1 {
		if t, ok := timeIn(line); ok {
			out = append(out, t)
		}
	}
	return out
}
