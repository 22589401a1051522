// Package format renders domain values into Telegram HTML message text.
package format

import (
	"html"
	"strconv"
	"strings"
	"time"
)

// Escape quotes text for ParseMode HTML.
func Escape(text string) string {
	return html.EscapeString(text)
}

// Link renders an anchor with an escaped label.
func Link(href, label string) string {
	return `<a href="` + html.EscapeString(href) + `">` + html.EscapeString(label) + `</a>`
}

// Bold wraps escaped text in <b>.
func Bold(text string) string {
	return "<b>" + html.EscapeString(text) + "</b>"
}

// Deref returns the pointed-to value or def when p is nil.
func Deref[T any](p *T, def T) T {
	if p != nil {
		return *p
	}
	return def
}

// Date renders an optional date as YYYY-MM-DD, or an empty string.
func Date(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

// Hours renders an optional decimal without trailing zeros.
func Hours(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// Lines joins non-empty lines with newlines.
func Lines(lines ...string) string {
	out := lines[:0:0]
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
