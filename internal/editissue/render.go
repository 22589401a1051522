package editissue

import (
	"strconv"
	"strings"

	"github.com/m3rciful/issuebot/core/telegram/format"
	"github.com/m3rciful/issuebot/internal/tracker"
)

// msg resolves bot.edit_issue.<key>, optionally followed by the cancel hint.
func (e *Engine) msg(t *turn, key string, withCancel bool) string {
	text := e.tr.T(t.lang, "bot.edit_issue."+key)
	if withCancel {
		text += " " + e.tr.T(t.lang, "bot.edit_issue.cancel_hint")
	}
	return text
}

func (e *Engine) issueURL(id int64) string {
	return strings.TrimRight(e.cfg.BaseURL, "/") + "/issues/" + strconv.FormatInt(id, 10)
}

// issueList renders a titled list of issue links and the prompt for an id.
func (e *Engine) issueList(t *turn, titleKey string, issues []tracker.Issue) []Reply {
	var b strings.Builder
	b.WriteString(format.Bold(e.tr.T(t.lang, titleKey) + ":"))
	b.WriteString("\n")
	for _, is := range issues {
		id := strconv.FormatInt(is.ID, 10)
		b.WriteString(format.Link(e.issueURL(is.ID), "#"+id))
		b.WriteString(": ")
		b.WriteString(format.Escape(is.Subject))
		b.WriteString("\n")
	}
	return []Reply{
		{Text: b.String(), HTML: true},
		{Text: e.msg(t, "input_id", true)},
	}
}

// journalText renders one line per journal detail.
func (e *Engine) journalText(t *turn, j tracker.Journal) string {
	lines := make([]string, 0, len(j.Details))
	for _, d := range j.Details {
		label := format.Escape(e.tr.T(t.lang, "bot.field."+d.Field))
		oldLabel, newLabel := format.Escape(d.OldLabel), format.Escape(d.NewLabel)
		switch {
		case d.OldLabel == "":
			lines = append(lines, e.tr.T(t.lang, "bot.journal.set_to", label, newLabel))
		case d.NewLabel == "":
			lines = append(lines, e.tr.T(t.lang, "bot.journal.deleted", label, oldLabel))
		default:
			lines = append(lines, e.tr.T(t.lang, "bot.journal.changed", label, oldLabel, newLabel))
		}
	}
	return format.Lines(lines...)
}
