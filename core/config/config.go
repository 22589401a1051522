package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the part of the configuration shared by every bot built on core.
// Applications embed it inline in their own config struct.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// Telegram run modes.
const (
	RunModeWebhook  = "webhook"
	RunModeLongpoll = "longpoll"
)

// Update kinds accepted by rate_limit.exclude_updates.
const (
	UpdateCallback    = "callback"
	UpdateMessage     = "message"
	UpdateInlineQuery = "inline_query"
)

type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// Zero means the library default.
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig is required only when RunMode is webhook.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	Profile     string `yaml:"profile"`
}

// RateLimitConfig throttles each user to one update per IntervalMS.
// ExcludeUpdates names update kinds that bypass the limiter.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN"`
	Path   string `yaml:"path" envconfig:"METRICS_PATH"`
}

// Load reads the YAML file at path, applies environment overrides and normalizes the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode fills target from YAML, then lets environment variables override it.
// Application configs that embed Config decode through here too.
func Decode(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := envconfig.Process("", target); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

// Normalize fills defaults and reports every invalid field at once.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil config")
	}
	return errors.Join(
		cfg.Telegram.normalize(&cfg.Webhook),
		cfg.RateLimit.normalize(),
		cfg.Metrics.normalize(),
	)
}

func (t *TelegramConfig) normalize(wh *WebhookConfig) error {
	var errs []error
	if t.Token == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	mode := strings.ToLower(strings.TrimSpace(t.RunMode))
	switch mode {
	case "", "polling", RunModeLongpoll:
		t.RunMode = RunModeLongpoll
		if t.LongPollTimeoutSeconds < 0 {
			errs = append(errs, errors.New("telegram.longpoll_timeout_seconds must be >= 0"))
		}
	case RunModeWebhook:
		t.RunMode = RunModeWebhook
		if strings.TrimSpace(wh.URL) == "" || strings.TrimSpace(wh.Listen) == "" || wh.Port <= 0 {
			errs = append(errs, errors.New("webhook.url, webhook.listen and webhook.port are required in webhook mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("telegram.run_mode %q: want webhook or longpoll", t.RunMode))
	}
	return errors.Join(errs...)
}

var updateKinds = []string{UpdateCallback, UpdateMessage, UpdateInlineQuery}

func (r *RateLimitConfig) normalize() error {
	kinds := r.ExcludeUpdates[:0]
	for _, v := range r.ExcludeUpdates {
		kind := strings.ToLower(strings.TrimSpace(v))
		if kind == "" {
			continue
		}
		if !slices.Contains(updateKinds, kind) {
			return fmt.Errorf("rate_limit.exclude_updates: unknown update kind %q", v)
		}
		kinds = append(kinds, kind)
	}
	r.ExcludeUpdates = kinds
	return nil
}

func (m *MetricsConfig) normalize() error {
	m.Listen = strings.TrimSpace(m.Listen)
	m.Path = strings.TrimSpace(m.Path)
	if m.Path == "" {
		m.Path = "/metrics"
	}
	if !strings.HasPrefix(m.Path, "/") {
		return fmt.Errorf("metrics.path %q must start with '/'", m.Path)
	}
	return nil
}
