package dosing

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var weekdayNames = map[string]time.Weekday{
	"domingo": time.Sunday,
	"segunda": time.Monday,
	"terca":   time.Tuesday,
	"quarta":  time.Wednesday,
	"quinta":  time.Thursday,
	"sexta":   time.Friday,
	"sabado":  time.Saturday,

	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// normalizeWeekdayName lower-cases name, strips diacritics and a trailing
// "-feira", so "Terça-feira", "terca" and "TERÇA" compare equal.
func normalizeWeekdayName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}
	s := strings.ToLower(strings.TrimSpace(stripped))
	s = strings.TrimSuffix(s, "-feira")
	s = strings.TrimSuffix(s, " feira")
	return s
}

// ParseWeekday resolves a Portuguese or English weekday name.
func ParseWeekday(name string) (time.Weekday, bool) {
	wd, ok := weekdayNames[normalizeWeekdayName(name)]
	return wd, ok
}

func weekdayListed(days []string, wd time.Weekday) bool {
	for _, name := range days {
		if parsed, ok := ParseWeekday(name); ok && parsed == wd {
			return true
		}
	}
	return false
}
