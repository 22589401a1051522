// Package cmd runs a configured Telegram application from a command line entry point.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	coreconfig "github.com/m3rciful/issuebot/core/config"
	"github.com/m3rciful/issuebot/core/logger"
	coretelegram "github.com/m3rciful/issuebot/core/telegram"
)

// ConfigCarrier is an application config that embeds the core config.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// TelegramApp supplies routes and lifecycle hooks for the bot.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// Options wire the steps of Run. ShutdownLogger and RunTelegram default to the real implementations.
type Options struct {
	// ConfigPath wins over ConfigEnvVar and DefaultConfigPath when set.
	ConfigPath        string
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(cfg ConfigCarrier) (TelegramApp, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
}

// ResolveConfigPath picks the explicit path, then the env variable, then the default.
func ResolveConfigPath(explicit, envVar, def string) (string, error) {
	if envVar == "" {
		envVar = "CONFIG_PATH"
	}
	for _, p := range []string{explicit, os.Getenv(envVar), def} {
		if p != "" {
			return p, nil
		}
	}
	return "", fmt.Errorf("cmd: config path not provided via flag, %s or default", envVar)
}

// Run loads the config, bootstraps the app and serves updates until ctx is done.
func Run(ctx context.Context, opts Options) (err error) {
	if opts.LoadConfig == nil || opts.Bootstrap == nil {
		return errors.New("cmd: LoadConfig and Bootstrap are required")
	}
	if opts.ShutdownLogger == nil {
		opts.ShutdownLogger = logger.Shutdown
	}
	if opts.RunTelegram == nil {
		opts.RunTelegram = coretelegram.RunTelegram
	}

	path, err := ResolveConfigPath(opts.ConfigPath, opts.ConfigEnvVar, opts.DefaultConfigPath)
	if err != nil {
		return err
	}
	cfg, err := opts.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("cmd: load config %s: %w", path, err)
	}
	if cfg.CoreConfig() == nil {
		return errors.New("cmd: loaded config is missing core configuration")
	}

	startedAt := time.Now()
	application, err := opts.Bootstrap(cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}
	defer func() {
		err = errors.Join(err, opts.ShutdownLogger())
	}()

	runOpts, err := application.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: telegram options: %w", err)
	}
	runOpts.OnStart = announce(runOpts.OnStart, func(ctx context.Context) {
		logger.Info(ctx, logger.CompApp, "ready",
			slog.String("config", path),
			slog.Duration("startup_duration", time.Since(startedAt)),
		)
	}, true)
	runOpts.OnStop = announce(runOpts.OnStop, func(ctx context.Context) {
		logger.Info(ctx, logger.CompApp, "shutdown")
	}, false)

	return opts.RunTelegram(ctx, runOpts)
}

// announce wraps a lifecycle hook with a log line, written after the hook when after is set.
func announce(hook func(context.Context, coretelegram.Runtime) error, log func(context.Context), after bool) func(context.Context, coretelegram.Runtime) error {
	return func(ctx context.Context, rt coretelegram.Runtime) error {
		if !after {
			log(ctx)
		}
		if hook != nil {
			if err := hook(ctx, rt); err != nil {
				return err
			}
		}
		if after {
			log(ctx)
		}
		return nil
	}
}
