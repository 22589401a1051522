package editissue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/issuebot/core/telegram/keyboard"
	"github.com/m3rciful/issuebot/core/telegram/state"
	"github.com/m3rciful/issuebot/internal/mutation"
	"github.com/m3rciful/issuebot/internal/tracker"
	"github.com/m3rciful/issuebot/internal/tracker/trackertest"
)

// echo renders a key followed by its arguments so assertions stay language-free.
type echo struct{}

func (echo) T(_ string, key string, args ...any) string {
	if len(args) == 0 {
		return key
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	return key + ":" + strings.Join(parts, "|")
}

type renamer struct {
	mu     sync.Mutex
	err    error
	titles map[int64]string
}

func (r *renamer) RenameChat(_ context.Context, g tracker.Group, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.titles == nil {
		r.titles = make(map[int64]string)
	}
	r.titles[g.TelegramID] = title
	return nil
}

type fixture struct {
	repo    *trackertest.Fake
	store   state.Store
	renamer *renamer
	engine  *Engine
	d       *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := trackertest.Seed()
	rn := &renamer{}
	eng, err := NewEngine(repo, mutation.NewService(repo), rn, echo{}, Config{BaseURL: "https://tracker.test/"})
	require.NoError(t, err)
	store := state.NewMemoryStore()
	return &fixture{
		repo:    repo,
		store:   store,
		renamer: rn,
		engine:  eng,
		d:       NewDispatcher(store, repo, eng, echo{}),
	}
}

func (f *fixture) send(t *testing.T, text string) []Reply {
	t.Helper()
	replies, err := f.d.Handle(context.Background(), Message{TelegramID: trackertest.AliceTelegram, Text: text, Lang: "en"})
	require.NoError(t, err)
	return replies
}

func (f *fixture) session(t *testing.T) *state.Session {
	t.Helper()
	s, err := f.store.Find(context.Background(), CommandName, trackertest.AliceAccount)
	if errors.Is(err, state.ErrSessionNotFound) {
		return nil
	}
	require.NoError(t, err)
	return s
}

func TestEveryStepHasHandler(t *testing.T) {
	for s := StepEntry; s <= StepApply; s++ {
		assert.NotNil(t, stepTable[s], "step %d", s)
	}
	assert.Len(t, stepTable, int(StepApply))
}

func TestNewEngineRequiresCollaborators(t *testing.T) {
	_, err := NewEngine(nil, nil, nil, nil, Config{})
	assert.Error(t, err)
}

func TestEntryWithIssueIDOffersAttributes(t *testing.T) {
	f := newFixture(t)

	replies := f.send(t, "/issue #42")
	require.Len(t, replies, 1)
	assert.Equal(t, "bot.edit_issue.select_param bot.edit_issue.cancel_hint", replies[0].Text)
	assert.Equal(t, keyboard.Build(tracker.EditableAttributes()), replies[0].Keyboard)

	s := f.session(t)
	require.NotNil(t, s)
	assert.Equal(t, StepAttribute, s.Step)
	assert.Equal(t, "42", s.Data[keyIssueID])
}

func TestEntryAliasAndBotSuffix(t *testing.T) {
	f := newFixture(t)
	f.send(t, "/task@issue_bot 42")
	s := f.session(t)
	require.NotNil(t, s)
	assert.Equal(t, StepAttribute, s.Step)
}

func TestEmptyEntryShowsHelp(t *testing.T) {
	f := newFixture(t)

	replies := f.send(t, "/issue")
	require.Len(t, replies, 1)
	assert.Equal(t, "bot.edit_issue.help", replies[0].Text)
	assert.True(t, replies[0].RemoveKeyboard)
	assert.Nil(t, f.session(t))
}

func TestHotListsIssuesAndStaysAtEntry(t *testing.T) {
	f := newFixture(t)

	replies := f.send(t, "/issue hot")
	require.Len(t, replies, 2)
	assert.True(t, replies[0].HTML)
	assert.Contains(t, replies[0].Text, `<a href="https://tracker.test/issues/42">#42</a>: Fix login`)
	assert.NotContains(t, replies[0].Text, "#43", "closed issues are not hot")
	assert.NotContains(t, replies[0].Text, "#44", "stale issues are not hot")
	assert.Equal(t, "bot.edit_issue.input_id bot.edit_issue.cancel_hint", replies[1].Text)

	s := f.session(t)
	require.NotNil(t, s)
	assert.Equal(t, StepEntry, s.Step)

	f.send(t, "42")
	assert.Equal(t, StepAttribute, f.session(t).Step)
}

func TestProjectPathReachesAttributes(t *testing.T) {
	f := newFixture(t)

	replies := f.send(t, "/issue project")
	require.Len(t, replies, 1)
	assert.Equal(t, keyboard.Build([]string{"Backend", "Mobile"}), replies[0].Keyboard)
	assert.Equal(t, StepProject, f.session(t).Step)

	replies = f.send(t, "Backend")
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0].Text, "#42")
	assert.Contains(t, replies[0].Text, "#43")
	s := f.session(t)
	assert.Equal(t, StepIssue, s.Step)
	assert.Equal(t, "1", s.Data[keyProjectID])

	f.send(t, "#42")
	s = f.session(t)
	assert.Equal(t, StepAttribute, s.Step)
	assert.Equal(t, "42", s.Data[keyIssueID])
}

func TestEntryProjectNameSkipsPicker(t *testing.T) {
	f := newFixture(t)
	f.send(t, "/issue Mobile")
	s := f.session(t)
	require.NotNil(t, s)
	assert.Equal(t, StepIssue, s.Step)
	assert.Equal(t, "2", s.Data[keyProjectID])
}

func TestInvisibleTargetsEndTheConversation(t *testing.T) {
	cases := map[string][]string{
		"hidden project":  {"/issue Secret"},
		"unknown project": {"/issue Nope"},
		"hidden issue":    {"/issue 45"},
		"missing issue":   {"/issue 999"},
		"issue step junk": {"/issue Backend", "none"},
		"bad attribute":   {"/issue 42", "colour"},
	}
	for name, inputs := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			var replies []Reply
			for _, in := range inputs {
				replies = f.send(t, in)
			}
			require.Len(t, replies, 1)
			assert.Equal(t, "bot.edit_issue.incorrect_value", replies[0].Text)
			assert.True(t, replies[0].RemoveKeyboard)
			assert.Nil(t, f.session(t))
		})
	}
}

func TestEnumerableAttributeOffersChoices(t *testing.T) {
	cases := []struct {
		attr    string
		prompt  string
		options []string
	}{
		{tracker.AttrPriority, "select_priority", []string{"Low", "Normal", "High"}},
		{tracker.AttrStatus, "select_status", []string{"New", "In Progress", "Resolved"}},
		{tracker.AttrTracker, "select_tracker", []string{"Bug", "Feature"}},
		{tracker.AttrAssignedTo, "select_user", []string{"alice", "bob"}},
		{tracker.AttrProject, "select_project", []string{"Backend", "Mobile"}},
	}
	for _, tc := range cases {
		t.Run(tc.attr, func(t *testing.T) {
			f := newFixture(t)
			f.send(t, "/issue 42")
			replies := f.send(t, tc.attr)
			require.Len(t, replies, 1)
			assert.Equal(t, "bot.edit_issue."+tc.prompt, replies[0].Text)
			assert.Equal(t, keyboard.Build(tc.options), replies[0].Keyboard)

			s := f.session(t)
			assert.Equal(t, StepApply, s.Step)
			assert.Equal(t, tc.attr, s.Data[keyAttribute])
		})
	}
}

func TestFreeTextAttributeAsksForValue(t *testing.T) {
	f := newFixture(t)
	f.send(t, "/issue 42")
	replies := f.send(t, tracker.AttrDueDate)
	require.Len(t, replies, 1)
	assert.Equal(t, "bot.edit_issue.input_value", replies[0].Text)
	assert.Empty(t, replies[0].Keyboard)
	assert.Equal(t, StepApply, f.session(t).Step)
}

func TestApplyChangesIssue(t *testing.T) {
	f := newFixture(t)
	f.send(t, "/issue 42")
	f.send(t, tracker.AttrPriority)

	replies := f.send(t, "High")
	require.Len(t, replies, 1)
	assert.True(t, replies[0].HTML)
	assert.True(t, replies[0].RemoveKeyboard)
	assert.Equal(t, "bot.journal.changed:bot.field.priority|Normal|High", replies[0].Text)
	assert.Equal(t, trackertest.High, f.repo.Issues[trackertest.LoginIssue].PriorityID)
	assert.Nil(t, f.session(t))
	require.Len(t, f.repo.Journals, 1)
	assert.Equal(t, trackertest.Alice, f.repo.Journals[0].UserID)
}

func TestApplyClearedValueRendersDeleted(t *testing.T) {
	f := newFixture(t)
	f.send(t, "/issue 42")
	f.send(t, tracker.AttrDueDate)
	replies := f.send(t, "31.12.2030")
	require.Len(t, replies, 1)
	assert.Equal(t, "bot.journal.set_to:bot.field.due_date|2030-12-31", replies[0].Text)

	f.send(t, "/issue 42")
	f.send(t, tracker.AttrDueDate)
	replies = f.send(t, "-")
	assert.Equal(t, "bot.journal.deleted:bot.field.due_date|2030-12-31", replies[0].Text)
	assert.Nil(t, f.repo.Issues[trackertest.LoginIssue].DueDate)
}

func TestApplyUnchangedValueFails(t *testing.T) {
	f := newFixture(t)
	f.send(t, "/issue 42")
	f.send(t, tracker.AttrPriority)

	replies := f.send(t, "Normal")
	require.Len(t, replies, 1)
	assert.Equal(t, "bot.error_editing_issue", replies[0].Text)
	assert.Nil(t, f.session(t))
	assert.Empty(t, f.repo.Journals)
}

func TestApplySaveErrorFails(t *testing.T) {
	f := newFixture(t)
	f.send(t, "/issue 42")
	f.send(t, tracker.AttrSubject)
	f.repo.SaveErr = errors.New("disk full")

	replies := f.send(t, "Fix login on mobile")
	require.Len(t, replies, 1)
	assert.Equal(t, "bot.error_editing_issue", replies[0].Text)
	assert.Nil(t, f.session(t))
}

func TestRenameLinkedChat(t *testing.T) {
	f := newFixture(t)
	f.send(t, "/issue 42")
	f.send(t, tracker.AttrSubjectChat)

	replies := f.send(t, "Login war room")
	require.Len(t, replies, 1)
	assert.Equal(t, "bot.edit_issue.chat_name_changed", replies[0].Text)
	assert.Equal(t, "Login war room", f.renamer.titles[trackertest.LoginGroupChat])
	assert.Nil(t, f.session(t))
}

func TestRenameChatFailures(t *testing.T) {
	t.Run("no chat", func(t *testing.T) {
		f := newFixture(t)
		f.send(t, "/issue 44")
		f.send(t, tracker.AttrSubjectChat)
		replies := f.send(t, "x")
		assert.Equal(t, "bot.edit_issue.chat_for_issue_not_exist", replies[0].Text)
	})
	t.Run("no permission", func(t *testing.T) {
		f := newFixture(t)
		f.repo.Permissions[trackertest.Backend][trackertest.Alice] = []string{"view_issues"}
		f.send(t, "/issue 42")
		f.send(t, tracker.AttrSubjectChat)
		replies := f.send(t, "x")
		assert.Equal(t, "bot.access_denied", replies[0].Text)
		assert.Empty(t, f.renamer.titles)
	})
	t.Run("telegram error", func(t *testing.T) {
		f := newFixture(t)
		f.renamer.err = errors.New("forbidden")
		f.send(t, "/issue 42")
		f.send(t, tracker.AttrSubjectChat)
		replies := f.send(t, "x")
		assert.Equal(t, "bot.error_editing_issue", replies[0].Text)
		assert.Nil(t, f.session(t))
	})
}

func TestUnknownAccountGetsNoSession(t *testing.T) {
	f := newFixture(t)
	replies, err := f.d.Handle(context.Background(), Message{TelegramID: 999, Text: "/issue 42"})
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "bot.edit_issue.incorrect_value", replies[0].Text)
}

func TestRepositoryErrorFailsTurn(t *testing.T) {
	f := newFixture(t)
	sess, err := f.store.FindOrCreate(context.Background(), CommandName, trackertest.AliceAccount)
	require.NoError(t, err)
	f.repo.Err = errors.New("db down")

	out := f.engine.Run(context.Background(), sess, f.repo.Users[trackertest.Alice], "/issue hot", "en")
	assert.Equal(t, Fail, out.Kind)
	require.Len(t, out.Replies, 1)
	assert.Equal(t, "bot.edit_issue.incorrect_value", out.Replies[0].Text)
}

func TestCancelDropsSessions(t *testing.T) {
	f := newFixture(t)
	f.send(t, "/issue 42")
	require.NotNil(t, f.session(t))

	n, err := f.d.Cancel(context.Background(), trackertest.AliceTelegram)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Nil(t, f.session(t))

	n, err = f.d.Cancel(context.Background(), 999)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRestartAfterFinishOpensFreshSession(t *testing.T) {
	f := newFixture(t)
	f.send(t, "/issue 42")
	f.send(t, tracker.AttrPriority)
	f.send(t, "Low")

	f.send(t, "/issue project")
	s := f.session(t)
	require.NotNil(t, s)
	assert.Equal(t, StepProject, s.Step)
	assert.Empty(t, s.Data)
}
