package app

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/issuebot/core/config"
	coredatabase "github.com/m3rciful/issuebot/core/database"
)

// Session store backends.
const (
	SessionStorePostgres = "postgres"
	SessionStoreMemory   = "memory"
)

// TrackerConfig describes the issue tracker the bot edits.
type TrackerConfig struct {
	BaseURL        string `yaml:"base_url" envconfig:"TRACKER_BASE_URL"`
	HotWindowHours int    `yaml:"hot_window_hours" envconfig:"TRACKER_HOT_WINDOW_HOURS"`
	ListLimit      int    `yaml:"list_limit" envconfig:"TRACKER_LIST_LIMIT"`
}

// ChatConfig controls the issue chats.
type ChatConfig struct {
	KickLocked          bool   `yaml:"kick_locked" envconfig:"CHAT_KICK_LOCKED"`
	KickIntervalMinutes int    `yaml:"kick_interval_minutes" envconfig:"CHAT_KICK_INTERVAL_MINUTES"`
	CloseMessage        string `yaml:"close_message" envconfig:"CHAT_CLOSE_MESSAGE"`
}

// LocaleConfig selects the fallback language.
type LocaleConfig struct {
	Default string `yaml:"default" envconfig:"LOCALE_DEFAULT"`
}

// SessionsConfig selects where conversation sessions live.
type SessionsConfig struct {
	Store string `yaml:"store" envconfig:"SESSIONS_STORE"`
}

// Config is the full application configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Tracker  TrackerConfig       `yaml:"tracker"`
	Chat     ChatConfig          `yaml:"chat"`
	Locale   LocaleConfig        `yaml:"locale"`
	Sessions SessionsConfig      `yaml:"sessions"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// HotWindow is how far back /issue hot looks.
func (c *Config) HotWindow() time.Duration {
	return time.Duration(c.Tracker.HotWindowHours) * time.Hour
}

// KickInterval is the period of the locked-user sweep.
func (c *Config) KickInterval() time.Duration {
	return time.Duration(c.Chat.KickIntervalMinutes) * time.Minute
}

// LoadConfig reads path, applies environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the configuration and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}

	c.Tracker.BaseURL = strings.TrimRight(strings.TrimSpace(c.Tracker.BaseURL), "/")
	if c.Tracker.BaseURL == "" {
		return fmt.Errorf("tracker.base_url is required")
	}
	if c.Tracker.HotWindowHours <= 0 {
		c.Tracker.HotWindowHours = 24
	}
	if c.Tracker.ListLimit <= 0 {
		c.Tracker.ListLimit = 10
	}

	if c.Chat.KickIntervalMinutes < 0 {
		return fmt.Errorf("chat.kick_interval_minutes must be >= 0")
	}
	if c.Chat.KickLocked && c.Chat.KickIntervalMinutes == 0 {
		c.Chat.KickIntervalMinutes = 60
	}

	if c.Locale.Default = strings.TrimSpace(c.Locale.Default); c.Locale.Default == "" {
		c.Locale.Default = "en"
	}

	switch s := strings.ToLower(strings.TrimSpace(c.Sessions.Store)); s {
	case "":
		c.Sessions.Store = SessionStorePostgres
	case SessionStorePostgres, SessionStoreMemory:
		c.Sessions.Store = s
	default:
		return fmt.Errorf("invalid sessions.store %q; allowed: postgres, memory", c.Sessions.Store)
	}
	return nil
}
