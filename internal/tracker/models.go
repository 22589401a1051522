// Package tracker reads and writes the issue tracker's data: accounts, projects,
// issues and their journals, and the Telegram groups linked to issues.
package tracker

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("tracker: not found")

// User statuses.
const (
	UserActive = 1
	UserLocked = 3
)

// ProjectActive marks a project that is neither closed nor archived.
const ProjectActive = 1

// User is a tracker user.
type User struct {
	ID        int64  `db:"id"`
	Login     string `db:"login"`
	Firstname string `db:"firstname"`
	Lastname  string `db:"lastname"`
	Admin     bool   `db:"admin"`
	Status    int    `db:"status"`
}

// Locked reports whether the user may no longer sign in.
func (u User) Locked() bool { return u.Status == UserLocked }

// Name renders "Firstname Lastname", falling back to the login.
func (u User) Name() string {
	switch {
	case u.Firstname != "" && u.Lastname != "":
		return u.Firstname + " " + u.Lastname
	case u.Firstname != "":
		return u.Firstname
	}
	return u.Login
}

// Account links a Telegram user to a tracker user.
type Account struct {
	ID         int64 `db:"id"`
	TelegramID int64 `db:"telegram_id"`
	UserID     int64 `db:"user_id"`
	User       User  `db:"user"`
}

// Project groups issues.
type Project struct {
	ID         int64  `db:"id"`
	Name       string `db:"name"`
	Identifier string `db:"identifier"`
	Public     bool   `db:"is_public"`
	Status     int    `db:"status"`
}

// Tracker is an issue type such as Bug or Feature.
type Tracker struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// Status is an issue status.
type Status struct {
	ID     int64  `db:"id"`
	Name   string `db:"name"`
	Closed bool   `db:"is_closed"`
}

// Priority is an issue priority.
type Priority struct {
	ID     int64  `db:"id"`
	Name   string `db:"name"`
	Active bool   `db:"active"`
}

// Issue is a tracked work item. Nullable columns are pointers.
type Issue struct {
	ID             int64      `db:"id"`
	ProjectID      int64      `db:"project_id"`
	TrackerID      int64      `db:"tracker_id"`
	StatusID       int64      `db:"status_id"`
	PriorityID     int64      `db:"priority_id"`
	AuthorID       int64      `db:"author_id"`
	AssignedToID   *int64     `db:"assigned_to_id"`
	Subject        string     `db:"subject"`
	StartDate      *time.Time `db:"start_date"`
	DueDate        *time.Time `db:"due_date"`
	EstimatedHours *float64   `db:"estimated_hours"`
	DoneRatio      int        `db:"done_ratio"`
	CreatedOn      time.Time  `db:"created_on"`
	UpdatedOn      time.Time  `db:"updated_on"`
}

// Group is the Telegram chat linked to an issue.
type Group struct {
	ID         int64     `db:"id"`
	IssueID    int64     `db:"issue_id"`
	TelegramID int64     `db:"telegram_id"`
	CreatedAt  time.Time `db:"created_at"`
}

// ArchivedMessage is a chat message stored alongside the issue.
type ArchivedMessage struct {
	IssueID       int64
	SentAt        time.Time
	Text          string
	FromFirstName string
	FromLastName  string
}

// Change is one column update requested on an issue. Old and New are the
// stored representations; the labels are what users read.
type Change struct {
	Attribute string
	Column    string
	Value     any
	Old       string
	New       string
	OldLabel  string
	NewLabel  string
}

// Detail is one (field, old, new) record of a journal.
type Detail struct {
	Property string
	Field    string
	OldValue string
	NewValue string
	OldLabel string
	NewLabel string
}

// Journal records one applied edit. No details means nothing changed.
type Journal struct {
	ID        int64
	IssueID   int64
	UserID    int64
	Notes     string
	CreatedOn time.Time
	Details   []Detail
}

// Empty reports whether the journal carries no change.
func (j Journal) Empty() bool { return len(j.Details) == 0 }
