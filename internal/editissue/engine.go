// Package editissue runs the guided conversation that edits one attribute of an issue.
//
// A conversation is a session at one of five steps. Each inbound message runs the
// handler of the session's step once and yields an Outcome; the Dispatcher then
// saves the session (Continue) or destroys it (Fail, Succeed).
package editissue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"time"

	"github.com/m3rciful/issuebot/core/logger"
	"github.com/m3rciful/issuebot/core/metrics"
	"github.com/m3rciful/issuebot/core/telegram/state"
	"github.com/m3rciful/issuebot/internal/tracker"
)

// CommandName names the sessions owned by this conversation.
const CommandName = "issue"

// Conversation steps.
const (
	StepEntry     state.Step = 1
	StepProject   state.Step = 2
	StepIssue     state.Step = 3
	StepAttribute state.Step = 4
	StepApply     state.Step = 5
)

// Session data keys.
const (
	keyProjectID = "project_id"
	keyIssueID   = "issue_id"
	keyAttribute = "attribute_name"
)

// Repository is the part of the tracker the conversation reads.
type Repository interface {
	AccountByTelegramID(ctx context.Context, telegramID int64) (tracker.Account, error)
	VisibleProjects(ctx context.Context, user tracker.User) ([]tracker.Project, error)
	VisibleProjectByName(ctx context.Context, user tracker.User, name string) (tracker.Project, error)
	Issue(ctx context.Context, id int64) (tracker.Issue, error)
	HotIssues(ctx context.Context, user tracker.User, since time.Time, limit int) ([]tracker.Issue, error)
	ProjectIssues(ctx context.Context, projectID int64, limit int) ([]tracker.Issue, error)
	AllowedTargetProjects(ctx context.Context, user tracker.User, issue tracker.Issue) ([]tracker.Project, error)
	ProjectTrackers(ctx context.Context, projectID int64) ([]tracker.Tracker, error)
	AllowedStatuses(ctx context.Context, user tracker.User, issue tracker.Issue) ([]tracker.Status, error)
	ActivePriorities(ctx context.Context) ([]tracker.Priority, error)
	AssignableUsers(ctx context.Context, projectID int64) ([]tracker.User, error)
	Allowed(ctx context.Context, user tracker.User, projectID int64, permission string) (bool, error)
	GroupForIssue(ctx context.Context, issueID int64) (tracker.Group, error)
}

// Mutator applies one attribute change.
type Mutator interface {
	Apply(ctx context.Context, issue tracker.Issue, user tracker.User, attr, raw string) (tracker.Journal, error)
}

// ChatRenamer renames the Telegram group linked to an issue.
type ChatRenamer interface {
	RenameChat(ctx context.Context, group tracker.Group, title string) error
}

// Translator resolves locale strings.
type Translator interface {
	T(lang, key string, args ...any) string
}

// Reply is one outbound message.
type Reply struct {
	Text           string
	HTML           bool
	Keyboard       [][]string
	RemoveKeyboard bool
}

// OutcomeKind tells the Dispatcher what to do with the session.
type OutcomeKind int

const (
	// Continue saves the session at Outcome.Step with Outcome.Data.
	Continue OutcomeKind = iota
	// Fail destroys the session after an invalid input.
	Fail
	// Succeed destroys the session after the conversation completed.
	Succeed
)

func (k OutcomeKind) String() string {
	switch k {
	case Continue:
		return "continue"
	case Fail:
		return "fail"
	case Succeed:
		return "succeed"
	}
	return "unknown"
}

// Outcome is the result of one turn.
type Outcome struct {
	Kind    OutcomeKind
	Step    state.Step
	Data    map[string]string
	Replies []Reply
}

func continueAt(step state.Step, data map[string]string, replies ...Reply) Outcome {
	return Outcome{Kind: Continue, Step: step, Data: data, Replies: replies}
}

func fail(replies ...Reply) Outcome {
	return Outcome{Kind: Fail, Replies: clearKeyboard(replies)}
}

func succeed(replies ...Reply) Outcome {
	return Outcome{Kind: Succeed, Replies: clearKeyboard(replies)}
}

// clearKeyboard makes the last reply of a terminal outcome hide the keyboard.
func clearKeyboard(replies []Reply) []Reply {
	if n := len(replies); n > 0 {
		replies[n-1].Keyboard = nil
		replies[n-1].RemoveKeyboard = true
	}
	return replies
}

// Config tunes the engine.
type Config struct {
	// BaseURL prefixes issue links, e.g. https://tracker.example.com.
	BaseURL string
	// HotWindow bounds how recently a hot issue was updated.
	HotWindow time.Duration
	// ListLimit caps issue lists.
	ListLimit int
	// Now returns the current time; tests override it.
	Now func() time.Time
}

type stepFunc func(e *Engine, t *turn) (Outcome, error)

// Engine holds the step table and the collaborators steps consult.
type Engine struct {
	repo    Repository
	mutator Mutator
	renamer ChatRenamer
	tr      Translator
	cfg     Config
	steps   map[state.Step]stepFunc
}

var stepTable = map[state.Step]stepFunc{
	StepEntry:     (*Engine).entryStep,
	StepProject:   (*Engine).projectStep,
	StepIssue:     (*Engine).issueStep,
	StepAttribute: (*Engine).attributeStep,
	StepApply:     (*Engine).applyStep,
}

// NewEngine wires an Engine and checks that every step has a handler.
func NewEngine(repo Repository, mutator Mutator, renamer ChatRenamer, tr Translator, cfg Config) (*Engine, error) {
	if repo == nil || mutator == nil || renamer == nil || tr == nil {
		return nil, errors.New("editissue: missing collaborator")
	}
	if cfg.HotWindow <= 0 {
		cfg.HotWindow = 24 * time.Hour
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = 10
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	for s := StepEntry; s <= StepApply; s++ {
		if stepTable[s] == nil {
			return nil, fmt.Errorf("editissue: no handler for step %d", s)
		}
	}
	return &Engine{
		repo:    repo,
		mutator: mutator,
		renamer: renamer,
		tr:      tr,
		cfg:     cfg,
		steps:   stepTable,
	}, nil
}

// turn carries everything one step invocation needs.
type turn struct {
	ctx  context.Context
	step state.Step
	data map[string]string
	user tracker.User
	text string
	lang string
	// issue is resolved from data before the step runs; nil when unset or missing.
	issue *tracker.Issue
}

// Run executes the handler of the session's step.
func (e *Engine) Run(ctx context.Context, sess *state.Session, user tracker.User, text, lang string) Outcome {
	t := &turn{
		ctx:  ctx,
		step: sess.Step,
		data: maps.Clone(sess.Data),
		user: user,
		text: text,
		lang: lang,
	}
	if t.data == nil {
		t.data = make(map[string]string)
	}

	out, err := e.run(t)
	if err != nil {
		logger.Error(ctx, logger.CompEditIssue, "step.failed",
			slog.String("status", "fail"),
			slog.Int("step", int(t.step)),
			slog.String("err", err.Error()),
		)
		out = e.incorrect(t)
	}
	metrics.EditTurn(int(t.step), out.Kind.String())
	return out
}

func (e *Engine) run(t *turn) (Outcome, error) {
	h, ok := e.steps[t.step]
	if !ok {
		return Outcome{}, fmt.Errorf("editissue: unknown step %d", t.step)
	}
	if raw, ok := t.data[keyIssueID]; ok {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Outcome{}, fmt.Errorf("editissue: stored issue id %q: %w", raw, err)
		}
		issue, err := e.repo.Issue(t.ctx, id)
		switch {
		case errors.Is(err, tracker.ErrNotFound):
		case err != nil:
			return Outcome{}, err
		default:
			t.issue = &issue
		}
	}
	return h(e, t)
}
