package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store is the PostgreSQL implementation of the tracker repositories.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const (
	userColumns    = `u.id, u.login, u.firstname, u.lastname, u.admin, u.status`
	projectColumns = `p.id, p.name, p.identifier, p.is_public, p.status`
	issueColumns   = `i.id, i.project_id, i.tracker_id, i.status_id, i.priority_id, i.author_id,
i.assigned_to_id, i.subject, i.start_date, i.due_date, i.estimated_hours, i.done_ratio,
i.created_on, i.updated_on`

	// visibleProject expects $1 = user id, $2 = admin flag.
	visibleProject = `p.status = 1 AND (p.is_public OR $2 OR EXISTS (
	SELECT 1 FROM members m WHERE m.project_id = p.id AND m.user_id = $1))`
)

func (s *Store) get(ctx context.Context, dest any, query string, args ...any) error {
	if err := s.db.GetContext(ctx, dest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// GetUserByTelegramID returns the tracker user linked to a Telegram account.
func (s *Store) GetUserByTelegramID(ctx context.Context, telegramID int64) (User, error) {
	acc, err := s.AccountByTelegramID(ctx, telegramID)
	if err != nil {
		return User{}, err
	}
	return acc.User, nil
}

// AccountByTelegramID loads an account and its user.
func (s *Store) AccountByTelegramID(ctx context.Context, telegramID int64) (Account, error) {
	var acc Account
	err := s.get(ctx, &acc, `SELECT a.id, a.telegram_id, a.user_id,
u.id AS "user.id", u.login AS "user.login", u.firstname AS "user.firstname",
u.lastname AS "user.lastname", u.admin AS "user.admin", u.status AS "user.status"
FROM telegram_accounts a JOIN users u ON u.id = a.user_id
WHERE a.telegram_id = $1`, telegramID)
	if err != nil {
		return Account{}, fmt.Errorf("tracker: account %d: %w", telegramID, err)
	}
	return acc, nil
}

// AccountID resolves the account owning sessions of a Telegram user.
func (s *Store) AccountID(ctx context.Context, telegramID int64) (int64, bool, error) {
	var id int64
	err := s.get(ctx, &id, `SELECT id FROM telegram_accounts WHERE telegram_id = $1`, telegramID)
	switch {
	case errors.Is(err, ErrNotFound):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("tracker: account id %d: %w", telegramID, err)
	}
	return id, true, nil
}

func (s *Store) accounts(ctx context.Context, where string, args ...any) ([]Account, error) {
	var out []Account
	err := s.db.SelectContext(ctx, &out, `SELECT a.id, a.telegram_id, a.user_id,
u.id AS "user.id", u.login AS "user.login", u.firstname AS "user.firstname",
u.lastname AS "user.lastname", u.admin AS "user.admin", u.status AS "user.status"
FROM telegram_accounts a JOIN users u ON u.id = a.user_id `+where+` ORDER BY a.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("tracker: list accounts: %w", err)
	}
	return out, nil
}

// Accounts lists every linked account.
func (s *Store) Accounts(ctx context.Context) ([]Account, error) {
	return s.accounts(ctx, "")
}

// LockedAccounts lists accounts whose tracker user is locked.
func (s *Store) LockedAccounts(ctx context.Context) ([]Account, error) {
	return s.accounts(ctx, "WHERE u.status = $1", UserLocked)
}

// VisibleProjects lists active projects the user can see, by name.
func (s *Store) VisibleProjects(ctx context.Context, user User) ([]Project, error) {
	var out []Project
	err := s.db.SelectContext(ctx, &out, `SELECT `+projectColumns+` FROM projects p
WHERE `+visibleProject+` ORDER BY p.name`, user.ID, user.Admin)
	if err != nil {
		return nil, fmt.Errorf("tracker: visible projects: %w", err)
	}
	return out, nil
}

// VisibleProjectByName finds a visible project by exact name.
func (s *Store) VisibleProjectByName(ctx context.Context, user User, name string) (Project, error) {
	var p Project
	err := s.get(ctx, &p, `SELECT `+projectColumns+` FROM projects p
WHERE `+visibleProject+` AND p.name = $3`, user.ID, user.Admin, name)
	if err != nil {
		return Project{}, fmt.Errorf("tracker: project %q: %w", name, err)
	}
	return p, nil
}

// Project loads a project by id.
func (s *Store) Project(ctx context.Context, id int64) (Project, error) {
	var p Project
	if err := s.get(ctx, &p, `SELECT `+projectColumns+` FROM projects p WHERE p.id = $1`, id); err != nil {
		return Project{}, fmt.Errorf("tracker: project %d: %w", id, err)
	}
	return p, nil
}

// AllowedTargetProjects lists projects the issue may be moved to by user.
// The issue's own project is always included.
func (s *Store) AllowedTargetProjects(ctx context.Context, user User, issue Issue) ([]Project, error) {
	var out []Project
	err := s.db.SelectContext(ctx, &out, `SELECT `+projectColumns+` FROM projects p
WHERE p.status = 1 AND (p.id = $3 OR $2 OR EXISTS (
	SELECT 1 FROM members m JOIN roles r ON r.id = m.role_id
	WHERE m.project_id = p.id AND m.user_id = $1 AND 'add_issues' = ANY(r.permissions)))
ORDER BY p.name`, user.ID, user.Admin, issue.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("tracker: target projects: %w", err)
	}
	return out, nil
}

// Issue loads an issue by id.
func (s *Store) Issue(ctx context.Context, id int64) (Issue, error) {
	var is Issue
	if err := s.get(ctx, &is, `SELECT `+issueColumns+` FROM issues i WHERE i.id = $1`, id); err != nil {
		return Issue{}, fmt.Errorf("tracker: issue %d: %w", id, err)
	}
	return is, nil
}

// HotIssues lists open issues of active projects assigned to user and updated since.
func (s *Store) HotIssues(ctx context.Context, user User, since time.Time, limit int) ([]Issue, error) {
	var out []Issue
	err := s.db.SelectContext(ctx, &out, `SELECT `+issueColumns+` FROM issues i
JOIN projects p ON p.id = i.project_id
JOIN issue_statuses st ON st.id = i.status_id
WHERE p.status = 1 AND NOT st.is_closed AND i.assigned_to_id = $1 AND i.updated_on >= $2
ORDER BY i.id LIMIT $3`, user.ID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("tracker: hot issues: %w", err)
	}
	return out, nil
}

// ProjectIssues lists the first issues of a project.
func (s *Store) ProjectIssues(ctx context.Context, projectID int64, limit int) ([]Issue, error) {
	var out []Issue
	err := s.db.SelectContext(ctx, &out, `SELECT `+issueColumns+` FROM issues i
WHERE i.project_id = $1 ORDER BY i.id LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("tracker: project issues: %w", err)
	}
	return out, nil
}

// ProjectTrackers lists trackers enabled on a project.
func (s *Store) ProjectTrackers(ctx context.Context, projectID int64) ([]Tracker, error) {
	var out []Tracker
	err := s.db.SelectContext(ctx, &out, `SELECT t.id, t.name FROM trackers t
JOIN projects_trackers pt ON pt.tracker_id = t.id
WHERE pt.project_id = $1 ORDER BY t.position, t.id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("tracker: project trackers: %w", err)
	}
	return out, nil
}

// Tracker loads a tracker by id.
func (s *Store) Tracker(ctx context.Context, id int64) (Tracker, error) {
	var t Tracker
	if err := s.get(ctx, &t, `SELECT id, name FROM trackers WHERE id = $1`, id); err != nil {
		return Tracker{}, fmt.Errorf("tracker: tracker %d: %w", id, err)
	}
	return t, nil
}

// AllowedStatuses lists the statuses user may set on issue: the current one plus
// workflow transitions of the user's roles. Admins may pick any status.
func (s *Store) AllowedStatuses(ctx context.Context, user User, issue Issue) ([]Status, error) {
	var out []Status
	var err error
	if user.Admin {
		err = s.db.SelectContext(ctx, &out, `SELECT id, name, is_closed FROM issue_statuses
ORDER BY position, id`)
	} else {
		err = s.db.SelectContext(ctx, &out, `SELECT s.id, s.name, s.is_closed FROM issue_statuses s
WHERE s.id = $1 OR s.id IN (
	SELECT w.new_status_id FROM workflows w
	JOIN members m ON m.role_id = w.role_id
	WHERE m.user_id = $2 AND m.project_id = $3 AND w.tracker_id = $4 AND w.old_status_id = $1)
ORDER BY s.position, s.id`, issue.StatusID, user.ID, issue.ProjectID, issue.TrackerID)
	}
	if err != nil {
		return nil, fmt.Errorf("tracker: allowed statuses: %w", err)
	}
	return out, nil
}

// Status loads a status by id.
func (s *Store) Status(ctx context.Context, id int64) (Status, error) {
	var st Status
	if err := s.get(ctx, &st, `SELECT id, name, is_closed FROM issue_statuses WHERE id = $1`, id); err != nil {
		return Status{}, fmt.Errorf("tracker: status %d: %w", id, err)
	}
	return st, nil
}

// ActivePriorities lists priorities marked active.
func (s *Store) ActivePriorities(ctx context.Context) ([]Priority, error) {
	var out []Priority
	err := s.db.SelectContext(ctx, &out, `SELECT id, name, active FROM issue_priorities
WHERE active ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("tracker: active priorities: %w", err)
	}
	return out, nil
}

// Priority loads a priority by id.
func (s *Store) Priority(ctx context.Context, id int64) (Priority, error) {
	var p Priority
	if err := s.get(ctx, &p, `SELECT id, name, active FROM issue_priorities WHERE id = $1`, id); err != nil {
		return Priority{}, fmt.Errorf("tracker: priority %d: %w", id, err)
	}
	return p, nil
}

// AssignableUsers lists active members of a project holding an assignable role.
func (s *Store) AssignableUsers(ctx context.Context, projectID int64) ([]User, error) {
	var out []User
	err := s.db.SelectContext(ctx, &out, `SELECT `+userColumns+` FROM users u
WHERE u.status = 1 AND EXISTS (
	SELECT 1 FROM members m JOIN roles r ON r.id = m.role_id
	WHERE m.user_id = u.id AND m.project_id = $1 AND r.assignable)
ORDER BY u.login`, projectID)
	if err != nil {
		return nil, fmt.Errorf("tracker: assignable users: %w", err)
	}
	return out, nil
}

// User loads a user by id.
func (s *Store) User(ctx context.Context, id int64) (User, error) {
	var u User
	if err := s.get(ctx, &u, `SELECT `+userColumns+` FROM users u WHERE u.id = $1`, id); err != nil {
		return User{}, fmt.Errorf("tracker: user %d: %w", id, err)
	}
	return u, nil
}

// Allowed reports whether user holds permission on an active project. Admins always do.
func (s *Store) Allowed(ctx context.Context, user User, projectID int64, permission string) (bool, error) {
	var ok bool
	err := s.db.GetContext(ctx, &ok, `SELECT EXISTS (
	SELECT 1 FROM projects p WHERE p.id = $1 AND p.status = 1 AND ($2 OR EXISTS (
		SELECT 1 FROM members m JOIN roles r ON r.id = m.role_id
		WHERE m.project_id = p.id AND m.user_id = $3 AND $4 = ANY(r.permissions))))`,
		projectID, user.Admin, user.ID, permission)
	if err != nil {
		return false, fmt.Errorf("tracker: permission %s: %w", permission, err)
	}
	return ok, nil
}
