// Package logger writes structured one-line records (JSON or key=value) for the bot.
// Call sites name a component and an event; correlation ids travel in the context.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/issuebot/core/buildinfo"
	coreconfig "github.com/m3rciful/issuebot/core/config"
)

var (
	// L is the process logger. It discards output until InitLogger runs,
	// so packages can log freely from tests and one-off commands.
	L = slog.New(slog.NewTextHandler(io.Discard, nil))

	initOnce sync.Once
	level    slog.LevelVar
	debug    sampler
	trace    bool

	closeMu sync.Mutex
	out     *asyncWriter
	files   []io.Closer
)

// InitLogger installs the configured handler as L and as the slog default.
// Only the first call has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() {
		var lc coreconfig.LoggingConfig
		if cfg != nil {
			lc = cfg.Logging
		}
		level.Set(parseLevel(lc.Level))
		debug.set(debugRate(lc.DebugSample))
		trace = truthy(os.Getenv("TRACE")) || truthy(os.Getenv("LOG_TRACE"))

		sinks := []io.Writer{os.Stdout}
		if lc.Dir != "" && lc.BotFile != "" {
			f, openErr := openLogFile(lc.Dir, lc.BotFile)
			if openErr != nil {
				err = openErr
				return
			}
			sinks = append(sinks, f)
			files = append(files, f)
		}
		out = newAsyncWriter(sinks, 0)
		L = slog.New(newRecordHandler(&level, out, lineFormatOf(lc), keyOrder(lc.KeysOrder)))
		slog.SetDefault(L)

		Info(context.Background(), CompApp, "startup",
			slog.String("go_version", runtime.Version()),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", profile(lc)),
		)
	})
	return err
}

// Shutdown flushes queued lines and closes log files. Later calls are no-ops.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	if out == nil {
		return nil
	}
	errs := []error{out.Flush(), out.Close()}
	for _, f := range files {
		errs = append(errs, f.Close())
	}
	out, files = nil, nil
	return errors.Join(errs...)
}

func openLogFile(dir, name string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logger: create %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open log file: %w", err)
	}
	return f, nil
}

// lineFormatOf picks key=value for dev and debug profiles unless a format is set.
func lineFormatOf(lc coreconfig.LoggingConfig) lineFormat {
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "json":
		return formatJSON
	case "kv", "text", "pretty":
		return formatKV
	}
	switch profile(lc) {
	case "debug", "dev":
		return formatKV
	}
	return formatJSON
}

func keyOrder(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return defaultKeyOrder
	}
	var order []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			order = append(order, k)
		}
	}
	return order
}

func profile(lc coreconfig.LoggingConfig) string {
	if p := strings.TrimSpace(lc.Profile); p != "" {
		return strings.ToLower(p)
	}
	return "prod"
}

// debugRate defaults to one in fifty when unset.
func debugRate(rate string) (int, int) {
	if strings.TrimSpace(rate) == "" {
		return 1, 50
	}
	return parseRate(rate)
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// SampleDebug reports whether a high-volume debug event should be written.
// TRACE=1 disables sampling.
func SampleDebug() bool {
	return trace || debug.allow()
}

// Log writes one event for component at the given level.
func Log(ctx context.Context, component string, lvl slog.Level, event string, attrs ...slog.Attr) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !L.Enabled(ctx, lvl) {
		return
	}
	head := []slog.Attr{slog.String("component", component), slog.String("event", event)}
	L.LogAttrs(ctx, lvl, event, append(head, attrs...)...)
}

// Debug logs a debug event.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Log(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info logs an info event.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Log(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs a warning event.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Log(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs an error event.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Log(ctx, component, slog.LevelError, event, attrs...)
}
