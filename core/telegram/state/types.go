package state

import (
	"context"
	"errors"
	"maps"
	"time"
)

// Step identifies a position in a command's conversation. Steps start at 1.
type Step int

// StepFirst is the step every new session starts at.
const StepFirst Step = 1

var (
	// ErrSessionNotFound is returned when a session does not exist.
	ErrSessionNotFound = errors.New("state: session not found")
	// ErrStepRegression is returned by Save when the step would move backwards.
	ErrStepRegression = errors.New("state: step cannot decrease")
)

// Session is the durable record of a user's progress through one command.
type Session struct {
	ID        int64
	Command   string
	AccountID int64
	Step      Step
	Data      map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Get returns the data value stored under key.
func (s *Session) Get(key string) (string, bool) {
	if s == nil || s.Data == nil {
		return "", false
	}
	v, ok := s.Data[key]
	return v, ok
}

// Clone returns a deep copy so callers can mutate data without touching the stored session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Data = maps.Clone(s.Data)
	if c.Data == nil {
		c.Data = make(map[string]string)
	}
	return &c
}

// Store persists sessions. Implementations guarantee at most one session per (command, account).
type Store interface {
	// FindOrCreate returns the live session or creates one at StepFirst with empty data.
	FindOrCreate(ctx context.Context, command string, accountID int64) (*Session, error)
	// Find returns ErrSessionNotFound when there is no live session.
	Find(ctx context.Context, command string, accountID int64) (*Session, error)
	// Save persists step and data; it rejects a step lower than the stored one.
	Save(ctx context.Context, s *Session) error
	// Delete destroys the session; deleting a missing session is not an error.
	Delete(ctx context.Context, command string, accountID int64) error
	// DeleteAll destroys every session of the account and reports how many existed.
	DeleteAll(ctx context.Context, accountID int64) (int, error)
	// Active lists command names with a live session, most recently updated first.
	Active(ctx context.Context, accountID int64) ([]string, error)
}
