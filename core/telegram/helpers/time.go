package helpers

import (
	"strings"
	"time"
)

// dateLayouts lists the calendar forms accepted from chat input. ISO first,
// then day-first variants with dots or slashes.
var dateLayouts = [...]string{
	time.DateOnly,
	"2006-1-2",
	"02.01.2006",
	"2.1.2006",
	"02/01/2006",
	"2/1/2006",
}

// ParseDate reads a calendar date typed by a user. The result is midnight UTC
// so callers can compare dates without timezone drift.
func ParseDate(input string) (time.Time, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, false
	}
	// "2024-03-05 14:30" keeps only the date part.
	if day, _, ok := strings.Cut(s, " "); ok {
		s = day
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
