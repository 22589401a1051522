package mutation

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/m3rciful/issuebot/core/telegram/format"
	tghelpers "github.com/m3rciful/issuebot/core/telegram/helpers"
	"github.com/m3rciful/issuebot/internal/tracker"
)

const (
	maxSubjectLength = 255
	// clearToken empties a nullable attribute.
	clearToken = "-"
)

func plainChange(attr string, value any, oldVal, newVal string) tracker.Change {
	col, _ := tracker.Column(attr)
	return tracker.Change{
		Attribute: attr,
		Column:    col,
		Value:     value,
		Old:       oldVal,
		New:       newVal,
		OldLabel:  oldVal,
		NewLabel:  newVal,
	}
}

func subject(issue tracker.Issue, raw string) (tracker.Change, rejection, error) {
	if utf8.RuneCountInString(raw) > maxSubjectLength {
		return tracker.Change{}, rejectInvalid, nil
	}
	if raw == issue.Subject {
		return tracker.Change{}, rejectUnchanged, nil
	}
	return plainChange(tracker.AttrSubject, raw, issue.Subject, raw), rejectNone, nil
}

func date(issue tracker.Issue, attr, raw string) (tracker.Change, rejection, error) {
	current, other := issue.StartDate, issue.DueDate
	if attr == tracker.AttrDueDate {
		current, other = issue.DueDate, issue.StartDate
	}

	var next *time.Time
	if raw != clearToken {
		parsed, ok := tghelpers.ParseDate(raw)
		if !ok {
			return tracker.Change{}, rejectInvalid, nil
		}
		d := time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
		next = &d
	}

	if next != nil && other != nil {
		start, due := next, other
		if attr == tracker.AttrDueDate {
			start, due = other, next
		}
		if dateOnly(*start).After(dateOnly(*due)) {
			return tracker.Change{}, rejectInvalid, nil
		}
	}
	if sameDate(current, next) {
		return tracker.Change{}, rejectUnchanged, nil
	}
	return plainChange(attr, next, format.Date(current), format.Date(next)), rejectNone, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return dateOnly(*a).Equal(dateOnly(*b))
}

func estimatedHours(issue tracker.Issue, raw string) (tracker.Change, rejection, error) {
	var next *float64
	if raw != clearToken {
		v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return tracker.Change{}, rejectInvalid, nil
		}
		next = &v
	}
	cur := issue.EstimatedHours
	if (cur == nil && next == nil) || (cur != nil && next != nil && *cur == *next) {
		return tracker.Change{}, rejectUnchanged, nil
	}
	return plainChange(tracker.AttrEstimatedHours, next, format.Hours(cur), format.Hours(next)), rejectNone, nil
}

func doneRatio(issue tracker.Issue, raw string) (tracker.Change, rejection, error) {
	v, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(raw, "%")))
	if err != nil || v < 0 || v > 100 {
		return tracker.Change{}, rejectInvalid, nil
	}
	if v == issue.DoneRatio {
		return tracker.Change{}, rejectUnchanged, nil
	}
	return plainChange(tracker.AttrDoneRatio, v, strconv.Itoa(issue.DoneRatio), strconv.Itoa(v)), rejectNone, nil
}
