package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/issuebot/core/config"
)

func memoryConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{
		Config:   coreconfig.Config{Telegram: coreconfig.TelegramConfig{Token: "123:abc"}},
		Tracker:  TrackerConfig{BaseURL: "https://tracker.test"},
		Sessions: SessionsConfig{Store: SessionStoreMemory},
	}
	require.NoError(t, cfg.Normalize())
	return cfg
}

func TestNewRegistersCommands(t *testing.T) {
	a, err := New(memoryConfig(t), nil)
	require.NoError(t, err)

	cmds := a.registry.Commands()
	assert.Contains(t, cmds, "/issue")
	assert.Contains(t, cmds, "/cancel")
	assert.Contains(t, cmds, "/kick_locked")
	assert.True(t, cmds["/kick_locked"].AdminOnly)
	assert.Equal(t, []string{"task"}, cmds["/issue"].Aliases)

	name, _, ok := a.registry.LookupCommand("/task 42")
	require.True(t, ok)
	assert.Equal(t, "/issue", name)
}

func TestTelegramRunOptions(t *testing.T) {
	a, err := New(memoryConfig(t), nil)
	require.NoError(t, err)

	opts, err := a.TelegramRunOptions()
	require.NoError(t, err)
	assert.Same(t, a.CoreConfig(), opts.Config)
	assert.Same(t, a.registry, opts.Registry)
	// three commands, the /task alias, text and document routes
	assert.Len(t, opts.Routes, 6)
	assert.NotEmpty(t, opts.Middlewares)
	assert.NotNil(t, opts.OnStart)
	assert.NoError(t, a.Close())
}
