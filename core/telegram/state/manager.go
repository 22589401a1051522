package state

import (
	"context"
	"log/slog"
	"sync"

	"github.com/m3rciful/issuebot/core/logger"
	tghelpers "github.com/m3rciful/issuebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// AccountResolver maps a Telegram user to the account that owns sessions.
type AccountResolver interface {
	AccountID(ctx context.Context, telegramID int64) (int64, bool, error)
}

// Manager routes plain text to the command whose session is still open.
type Manager struct {
	store    Store
	accounts AccountResolver

	mu       sync.RWMutex
	handlers map[string]tele.HandlerFunc
}

// NewManager builds a Manager on top of a Store.
func NewManager(store Store, accounts AccountResolver) *Manager {
	return &Manager{
		store:    store,
		accounts: accounts,
		handlers: make(map[string]tele.HandlerFunc),
	}
}

// Store returns the underlying session store.
func (m *Manager) Store() Store {
	return m.store
}

// RegisterHandler associates a command with the handler continuing its conversation.
func (m *Manager) RegisterHandler(command string, h tele.HandlerFunc) {
	if h == nil || command == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[command] = h
}

func (m *Manager) handler(command string) (tele.HandlerFunc, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handlers[command]
	return h, ok
}

// activeCommand returns the most recent live command with a registered handler.
func (m *Manager) activeCommand(ctx context.Context, telegramID int64) (string, bool) {
	if m.accounts == nil {
		return "", false
	}
	accountID, ok, err := m.accounts.AccountID(ctx, telegramID)
	if err != nil {
		logger.Warn(ctx, logger.CompSessions, "session.account_lookup",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return "", false
	}
	if !ok {
		return "", false
	}
	names, err := m.store.Active(ctx, accountID)
	if err != nil {
		logger.Warn(ctx, logger.CompSessions, "session.active",
			slog.String("status", "fail"),
			slog.Int64("account_id", accountID),
			slog.String("err", err.Error()),
		)
		return "", false
	}
	for _, name := range names {
		if _, ok := m.handler(name); ok {
			return name, true
		}
	}
	return "", false
}

// InProgress reports whether the user has an open conversation.
func (m *Manager) InProgress(ctx context.Context, telegramID int64) bool {
	_, ok := m.activeCommand(ctx, telegramID)
	return ok
}

// ManagerHandler executes the handler registered for the user's open command, if any.
func (m *Manager) ManagerHandler(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID
	command, ok := m.activeCommand(ctx, userID)
	logger.Debug(ctx, logger.CompTG, "fsm.manager",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.String("command", command),
	)
	if !ok {
		return nil
	}
	h, _ := m.handler(command)
	return h(c)
}

// KeyedMutex serializes work per key; entries are dropped when unused.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// Lock blocks until key is free and returns the matching unlock function.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
