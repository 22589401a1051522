// Package mutation applies a single attribute change to an issue on behalf of a user.
package mutation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/issuebot/core/logger"
	"github.com/m3rciful/issuebot/internal/tracker"
)

// PermissionEditIssues is required to change any attribute.
const PermissionEditIssues = "edit_issues"

// Repository is the slice of the tracker the service reads and writes.
type Repository interface {
	Allowed(ctx context.Context, user tracker.User, projectID int64, permission string) (bool, error)

	AllowedTargetProjects(ctx context.Context, user tracker.User, issue tracker.Issue) ([]tracker.Project, error)
	Project(ctx context.Context, id int64) (tracker.Project, error)
	ProjectTrackers(ctx context.Context, projectID int64) ([]tracker.Tracker, error)
	Tracker(ctx context.Context, id int64) (tracker.Tracker, error)
	AllowedStatuses(ctx context.Context, user tracker.User, issue tracker.Issue) ([]tracker.Status, error)
	Status(ctx context.Context, id int64) (tracker.Status, error)
	ActivePriorities(ctx context.Context) ([]tracker.Priority, error)
	Priority(ctx context.Context, id int64) (tracker.Priority, error)
	AssignableUsers(ctx context.Context, projectID int64) ([]tracker.User, error)
	User(ctx context.Context, id int64) (tracker.User, error)

	SaveChanges(ctx context.Context, issueID, authorID int64, changes []tracker.Change, notes string) (tracker.Journal, error)
}

// Service coerces raw user input into issue changes and persists them.
type Service struct {
	repo Repository
}

// NewService builds a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// rejection explains why input produced no change.
type rejection string

const (
	rejectNone      rejection = ""
	rejectInvalid   rejection = "invalid"
	rejectUnchanged rejection = "unchanged"
)

// Apply changes attr of issue to raw on behalf of user.
// Invalid or unchanged input yields an empty journal and a nil error; errors are
// reserved for infrastructure failures.
func (s *Service) Apply(ctx context.Context, issue tracker.Issue, user tracker.User, attr, raw string) (tracker.Journal, error) {
	raw = strings.TrimSpace(raw)

	ok, err := s.repo.Allowed(ctx, user, issue.ProjectID, PermissionEditIssues)
	if err != nil {
		return tracker.Journal{}, fmt.Errorf("mutation: check permission: %w", err)
	}
	if !ok {
		s.logRejected(ctx, issue, attr, "forbidden")
		return tracker.Journal{}, nil
	}

	ch, rej, err := s.coerce(ctx, issue, user, attr, raw)
	if err != nil {
		return tracker.Journal{}, fmt.Errorf("mutation: %s: %w", attr, err)
	}
	if rej != rejectNone {
		s.logRejected(ctx, issue, attr, string(rej))
		return tracker.Journal{}, nil
	}

	j, err := s.repo.SaveChanges(ctx, issue.ID, user.ID, []tracker.Change{ch}, "")
	if err != nil {
		return tracker.Journal{}, fmt.Errorf("mutation: save %s: %w", attr, err)
	}
	logger.Info(ctx, logger.CompMutation, "mutation.applied",
		slog.String("status", "ok"),
		slog.Int64("issue_id", issue.ID),
		slog.String("attribute", attr),
		slog.Int("count", len(j.Details)),
	)
	return j, nil
}

func (s *Service) logRejected(ctx context.Context, issue tracker.Issue, attr, reason string) {
	logger.Info(ctx, logger.CompMutation, "mutation.rejected",
		slog.String("status", "skip"),
		slog.Int64("issue_id", issue.ID),
		slog.String("attribute", attr),
		slog.String("details", reason),
	)
}

func (s *Service) coerce(ctx context.Context, issue tracker.Issue, user tracker.User, attr, raw string) (tracker.Change, rejection, error) {
	if raw == "" {
		return tracker.Change{}, rejectInvalid, nil
	}
	switch attr {
	case tracker.AttrProject:
		return s.projectChange(ctx, issue, user, raw)
	case tracker.AttrTracker:
		return s.trackerChange(ctx, issue, raw)
	case tracker.AttrStatus:
		return s.statusChange(ctx, issue, user, raw)
	case tracker.AttrPriority:
		return s.priorityChange(ctx, issue, raw)
	case tracker.AttrAssignedTo:
		return s.assigneeChange(ctx, issue, raw)
	case tracker.AttrSubject:
		return subject(issue, raw)
	case tracker.AttrStartDate, tracker.AttrDueDate:
		return date(issue, attr, raw)
	case tracker.AttrEstimatedHours:
		return estimatedHours(issue, raw)
	case tracker.AttrDoneRatio:
		return doneRatio(issue, raw)
	}
	return tracker.Change{}, rejectInvalid, nil
}
