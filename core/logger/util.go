package logger

import (
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Status maps an error onto the status label used by metrics.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Took is the time elapsed since start, rounded for logging.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds d to whole milliseconds; negative values become zero.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// SummarizeStrings joins at most limit values and reports whether some were left out.
func SummarizeStrings(values []string, limit int) (string, bool) {
	if limit < len(values) {
		if limit < 0 {
			limit = 0
		}
		return strings.Join(values[:limit], ", "), true
	}
	return strings.Join(values, ", "), false
}

// Clip drops control and format runes (keeping tab and newline) and cuts s to max runes.
// User supplied text goes through Clip before it reaches a log line.
func Clip(s string, max int) string {
	if max <= 0 || s == "" {
		return ""
	}
	var b strings.Builder
	n := 0
	for _, r := range s {
		if r != '\n' && r != '\t' && (unicode.IsControl(r) || unicode.Is(unicode.Cf, r)) {
			continue
		}
		if n == max {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// BuildRID derives the correlation id of a Telegram update: "update:chat:user".
func BuildRID(updateID int, chatID, userID int64) string {
	buf := make([]byte, 0, 48)
	buf = strconv.AppendInt(buf, int64(updateID), 10)
	buf = append(buf, ':')
	buf = strconv.AppendInt(buf, chatID, 10)
	buf = append(buf, ':')
	buf = strconv.AppendInt(buf, userID, 10)
	return string(buf)
}

// CompactRID rewrites a BuildRID value as dot separated base36 numbers.
// Any other id, such as a worker uuid, is returned trimmed but otherwise unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, part := range parts {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}

func validUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "?")
}
