package router

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/m3rciful/issuebot/core/logger"
	"github.com/m3rciful/issuebot/core/metrics"
	tghelpers "github.com/m3rciful/issuebot/core/telegram/helpers"
	"github.com/m3rciful/issuebot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// served runs fn as handler name and writes the handler.handled summary line.
func served(c tele.Context, name string, fn tele.HandlerFunc) error {
	start := time.Now()
	tghelpers.WithHandler(c, name)
	err := fn(c)
	outcome := "ok"
	if err != nil {
		outcome = "fail"
	}
	summarize(c, name, start, outcome, outcome, err)
	return err
}

// skipped logs an update nothing handled.
func skipped(c tele.Context, name string) error {
	summarize(c, name, time.Now(), "skip", "ok", nil)
	return nil
}

func summarize(c tele.Context, name string, start time.Time, status, outcome string, err error) {
	took := time.Since(start)
	metrics.ObserveHandler(name, outcome, took)

	msgs, kb := middleware.GetCounters(c)
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("outcome", outcome),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", took),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.Clip(err.Error(), 256)),
			slog.String("err_code", errCode(err)),
		)
	}
	logger.Info(tghelpers.WithHandler(c, name), logger.CompTG, "handler.handled", attrs...)
}

// handlerName turns "/Kick Locked" into "kick_locked".
func handlerName(command string) string {
	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(command), "/"))
	if name == "" {
		return "unknown"
	}
	return strings.ReplaceAll(name, " ", "_")
}

// errCode prefers an error's own Code() and falls back to its type name.
func errCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := strings.TrimSpace(coded.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "UNKNOWN_ERROR"
	}
	return strings.ToUpper(t.Name())
}
