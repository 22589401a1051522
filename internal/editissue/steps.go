package editissue

import (
	"errors"
	"log/slog"
	"slices"
	"strconv"

	"github.com/m3rciful/issuebot/core/logger"
	"github.com/m3rciful/issuebot/core/telegram/keyboard"
	"github.com/m3rciful/issuebot/internal/mutation"
	"github.com/m3rciful/issuebot/internal/tracker"
)

func (e *Engine) entryStep(t *turn) (Outcome, error) {
	in := parseEntry(t.text)
	switch in.kind {
	case entryIssueID:
		return e.openIssue(t, in.issueID)
	case entryHot:
		issues, err := e.repo.HotIssues(t.ctx, t.user, e.cfg.Now().Add(-e.cfg.HotWindow), e.cfg.ListLimit)
		if err != nil {
			return Outcome{}, err
		}
		return continueAt(StepEntry, t.data, e.issueList(t, "bot.hot", issues)...), nil
	case entryProject:
		projects, err := e.repo.VisibleProjects(t.ctx, t.user)
		if err != nil {
			return Outcome{}, err
		}
		names := make([]string, 0, len(projects))
		for _, p := range projects {
			names = append(names, p.Name)
		}
		return continueAt(StepProject, t.data, Reply{
			Text:     e.msg(t, "select_project", false),
			Keyboard: keyboard.Build(names),
		}), nil
	case entryProjectName:
		return e.openProject(t, in.name)
	}
	return succeed(Reply{Text: e.msg(t, "help", false)}), nil
}

func (e *Engine) projectStep(t *turn) (Outcome, error) {
	return e.openProject(t, commandArgs(t.text))
}

func (e *Engine) openProject(t *turn, name string) (Outcome, error) {
	project, err := e.repo.VisibleProjectByName(t.ctx, t.user, name)
	if errors.Is(err, tracker.ErrNotFound) {
		return e.incorrect(t), nil
	}
	if err != nil {
		return Outcome{}, err
	}
	issues, err := e.repo.ProjectIssues(t.ctx, project.ID, e.cfg.ListLimit)
	if err != nil {
		return Outcome{}, err
	}
	t.data[keyProjectID] = strconv.FormatInt(project.ID, 10)
	return continueAt(StepIssue, t.data, e.issueList(t, "bot.edit_issue.project_issues", issues)...), nil
}

func (e *Engine) issueStep(t *turn) (Outcome, error) {
	id, ok := parseIssueID(t.text)
	if !ok {
		return e.incorrect(t), nil
	}
	return e.openIssue(t, id)
}

// openIssue selects the issue and offers the editable attributes.
func (e *Engine) openIssue(t *turn, id int64) (Outcome, error) {
	issue, err := e.repo.Issue(t.ctx, id)
	if errors.Is(err, tracker.ErrNotFound) {
		return e.incorrect(t), nil
	}
	if err != nil {
		return Outcome{}, err
	}
	visible, err := e.repo.VisibleProjects(t.ctx, t.user)
	if err != nil {
		return Outcome{}, err
	}
	if !slices.ContainsFunc(visible, func(p tracker.Project) bool { return p.ID == issue.ProjectID }) {
		return e.incorrect(t), nil
	}
	t.data[keyIssueID] = strconv.FormatInt(issue.ID, 10)
	return continueAt(StepAttribute, t.data, Reply{
		Text:     e.msg(t, "select_param", true),
		Keyboard: keyboard.Build(tracker.EditableAttributes()),
	}), nil
}

func (e *Engine) attributeStep(t *turn) (Outcome, error) {
	attr := t.text
	if !tracker.IsEditable(attr) || t.issue == nil {
		return e.incorrect(t), nil
	}
	t.data[keyAttribute] = attr

	var (
		prompt  string
		options []string
	)
	switch attr {
	case tracker.AttrProject:
		projects, err := e.repo.AllowedTargetProjects(t.ctx, t.user, *t.issue)
		if err != nil {
			return Outcome{}, err
		}
		prompt = "select_project"
		for _, p := range projects {
			options = append(options, p.Name)
		}
	case tracker.AttrTracker:
		trackers, err := e.repo.ProjectTrackers(t.ctx, t.issue.ProjectID)
		if err != nil {
			return Outcome{}, err
		}
		prompt = "select_tracker"
		for _, tr := range trackers {
			options = append(options, tr.Name)
		}
	case tracker.AttrStatus:
		statuses, err := e.repo.AllowedStatuses(t.ctx, t.user, *t.issue)
		if err != nil {
			return Outcome{}, err
		}
		prompt = "select_status"
		for _, s := range statuses {
			options = append(options, s.Name)
		}
	case tracker.AttrPriority:
		priorities, err := e.repo.ActivePriorities(t.ctx)
		if err != nil {
			return Outcome{}, err
		}
		prompt = "select_priority"
		for _, p := range priorities {
			options = append(options, p.Name)
		}
	case tracker.AttrAssignedTo:
		users, err := e.repo.AssignableUsers(t.ctx, t.issue.ProjectID)
		if err != nil {
			return Outcome{}, err
		}
		prompt = "select_user"
		for _, u := range users {
			options = append(options, u.Login)
		}
	default:
		return continueAt(StepApply, t.data, Reply{Text: e.msg(t, "input_value", false)}), nil
	}
	return continueAt(StepApply, t.data, Reply{
		Text:     e.msg(t, prompt, false),
		Keyboard: keyboard.Build(options),
	}), nil
}

func (e *Engine) applyStep(t *turn) (Outcome, error) {
	if t.issue == nil {
		return e.incorrect(t), nil
	}
	attr := t.data[keyAttribute]
	if attr == tracker.AttrSubjectChat {
		return e.renameChat(t)
	}

	journal, err := e.mutator.Apply(t.ctx, *t.issue, t.user, attr, t.text)
	if err != nil {
		logger.Error(t.ctx, logger.CompEditIssue, "issue.apply",
			slog.String("status", "fail"),
			slog.Int64("issue_id", t.issue.ID),
			slog.String("attribute", attr),
			slog.String("err", err.Error()),
		)
	}
	if err != nil || journal.Empty() {
		return fail(Reply{Text: e.tr.T(t.lang, "bot.error_editing_issue")}), nil
	}
	return succeed(Reply{Text: e.journalText(t, journal), HTML: true}), nil
}

func (e *Engine) renameChat(t *turn) (Outcome, error) {
	group, err := e.repo.GroupForIssue(t.ctx, t.issue.ID)
	if errors.Is(err, tracker.ErrNotFound) {
		return fail(Reply{Text: e.msg(t, "chat_for_issue_not_exist", false)}), nil
	}
	if err != nil {
		return Outcome{}, err
	}
	allowed, err := e.repo.Allowed(t.ctx, t.user, t.issue.ProjectID, mutation.PermissionEditIssues)
	if err != nil {
		return Outcome{}, err
	}
	if !allowed {
		return fail(Reply{Text: e.tr.T(t.lang, "bot.access_denied")}), nil
	}
	if err := e.renamer.RenameChat(t.ctx, group, t.text); err != nil {
		logger.Error(t.ctx, logger.CompEditIssue, "chat.rename",
			slog.String("status", "fail"),
			slog.Int64("issue_id", t.issue.ID),
			slog.String("err", err.Error()),
		)
		return fail(Reply{Text: e.tr.T(t.lang, "bot.error_editing_issue")}), nil
	}
	return succeed(Reply{Text: e.msg(t, "chat_name_changed", false)}), nil
}

// incorrect is the terminal reply for any validation error.
func (e *Engine) incorrect(t *turn) Outcome {
	return fail(Reply{Text: e.msg(t, "incorrect_value", false)})
}
