package state

import (
	"context"
	"sort"
	"sync"
	"time"
)

type sessionKey struct {
	command   string
	accountID int64
}

type memoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	sessions map[sessionKey]*Session
	now      func() time.Time
}

// NewMemoryStore constructs an in-memory Store implementation for tests and development.
func NewMemoryStore() Store {
	return &memoryStore{
		sessions: make(map[sessionKey]*Session),
		now:      time.Now,
	}
}

// FindOrCreate returns a copy of the stored session, creating it when absent.
func (m *memoryStore) FindOrCreate(_ context.Context, command string, accountID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sessionKey{command: command, accountID: accountID}
	if sess, ok := m.sessions[key]; ok {
		return sess.Clone(), nil
	}

	m.nextID++
	now := m.now()
	sess := &Session{
		ID:        m.nextID,
		Command:   command,
		AccountID: accountID,
		Step:      StepFirst,
		Data:      make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.sessions[key] = sess
	return sess.Clone(), nil
}

// Find returns a copy of the stored session.
func (m *memoryStore) Find(_ context.Context, command string, accountID int64) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if sess, ok := m.sessions[sessionKey{command: command, accountID: accountID}]; ok {
		return sess.Clone(), nil
	}
	return nil, ErrSessionNotFound
}

// Save replaces step and data of an existing session.
func (m *memoryStore) Save(_ context.Context, s *Session) error {
	if s == nil {
		return ErrSessionNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[sessionKey{command: s.Command, accountID: s.AccountID}]
	if !ok {
		return ErrSessionNotFound
	}
	if s.Step < stored.Step {
		return ErrStepRegression
	}
	next := s.Clone()
	next.ID = stored.ID
	next.CreatedAt = stored.CreatedAt
	next.UpdatedAt = m.now()
	m.sessions[sessionKey{command: s.Command, accountID: s.AccountID}] = next
	return nil
}

// Delete removes the session for the command and account.
func (m *memoryStore) Delete(_ context.Context, command string, accountID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, sessionKey{command: command, accountID: accountID})
	return nil
}

// DeleteAll removes every session owned by the account.
func (m *memoryStore) DeleteAll(_ context.Context, accountID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key := range m.sessions {
		if key.accountID == accountID {
			delete(m.sessions, key)
			n++
		}
	}
	return n, nil
}

// Active lists the account's live commands, most recently updated first.
func (m *memoryStore) Active(_ context.Context, accountID int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var live []*Session
	for key, sess := range m.sessions {
		if key.accountID == accountID {
			live = append(live, sess)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].UpdatedAt.Equal(live[j].UpdatedAt) {
			return live[i].ID > live[j].ID
		}
		return live[i].UpdatedAt.After(live[j].UpdatedAt)
	})
	names := make([]string, 0, len(live))
	for _, sess := range live {
		names = append(names, sess.Command)
	}
	return names, nil
}
