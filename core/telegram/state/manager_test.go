package state

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type staticAccounts map[int64]int64

func (s staticAccounts) AccountID(_ context.Context, telegramID int64) (int64, bool, error) {
	id, ok := s[telegramID]
	return id, ok, nil
}

type failingAccounts struct{}

func (failingAccounts) AccountID(context.Context, int64) (int64, bool, error) {
	return 0, false, errors.New("db down")
}

func TestManagerInProgress(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, staticAccounts{100: 1})
	m.RegisterHandler("issue", func(tele.Context) error { return nil })

	assert.False(t, m.InProgress(ctx, 100))

	_, err := store.FindOrCreate(ctx, "issue", 1)
	require.NoError(t, err)
	assert.True(t, m.InProgress(ctx, 100))
	assert.False(t, m.InProgress(ctx, 200), "unknown telegram user")
}

func TestManagerIgnoresUnregisteredCommands(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, staticAccounts{100: 1})

	_, err := store.FindOrCreate(ctx, "stale", 1)
	require.NoError(t, err)
	assert.False(t, m.InProgress(ctx, 100))
}

func TestManagerAccountFailure(t *testing.T) {
	m := NewManager(NewMemoryStore(), failingAccounts{})
	m.RegisterHandler("issue", func(tele.Context) error { return nil })
	assert.False(t, m.InProgress(context.Background(), 100))
}

func TestManagerRegisterHandlerSkipsInvalid(t *testing.T) {
	m := NewManager(NewMemoryStore(), nil)
	m.RegisterHandler("", func(tele.Context) error { return nil })
	m.RegisterHandler("issue", nil)
	assert.Empty(t, m.handlers)
}
