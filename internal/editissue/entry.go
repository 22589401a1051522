package editissue

import (
	"regexp"
	"strconv"
	"strings"
)

type entryKind int

const (
	entryEmpty entryKind = iota
	entryIssueID
	entryHot
	entryProject
	entryProjectName
)

// entry is the parsed form of a step-1 message.
type entry struct {
	kind    entryKind
	issueID int64
	name    string
}

const (
	keywordHot     = "hot"
	keywordProject = "project"
)

var (
	leadingIssueRe = regexp.MustCompile(`^#?(\d+)`)
	anyIssueRe     = regexp.MustCompile(`#?(\d+)`)
)

// commandArgs drops a leading /command token (with optional @bot suffix).
// Text without a command is returned trimmed.
func commandArgs(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return text
	}
	i := strings.IndexFunc(text, func(r rune) bool { return r == ' ' || r == '\n' || r == '\t' })
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(text[i:])
}

func parseEntry(text string) entry {
	args := commandArgs(text)
	if m := leadingIssueRe.FindStringSubmatch(args); m != nil {
		if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			return entry{kind: entryIssueID, issueID: id}
		}
	}
	switch args {
	case "":
		return entry{kind: entryEmpty}
	case keywordHot:
		return entry{kind: entryHot}
	case keywordProject:
		return entry{kind: entryProject}
	}
	return entry{kind: entryProjectName, name: args}
}

// parseIssueID finds the first issue number in text once any command token is dropped.
func parseIssueID(text string) (int64, bool) {
	m := anyIssueRe.FindStringSubmatch(commandArgs(text))
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	return id, err == nil
}
