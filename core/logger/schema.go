package logger

import (
	"log/slog"
	"strings"
)

// Components used across the bot. The component is the first grouping key of every line.
const (
	CompApp       = "app"
	CompDB        = "db"
	CompMigrate   = "db.migrate"
	CompTG        = "tg"
	CompWire      = "tg.wire"
	CompSender    = "tg.sender"
	CompMetrics   = "metrics"
	CompSessions  = "service.sessions"
	CompEditIssue = "service.edit_issue"
	CompMutation  = "service.mutation"
	CompGroups    = "service.groups"
)

func levelName(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DEBUG"
	case l < slog.LevelWarn:
		return "INFO"
	case l < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// status is free form but lower-cased; outcome must be one of the known values or it is dropped.
var knownOutcomes = map[string]bool{
	"ok":           true,
	"fail":         true,
	"cancelled":    true,
	"rate_limited": true,
	// conversation turns
	"continue": true,
	"succeed":  true,
}

func normalizeEnums(f fields) {
	if s, ok := f["status"].(string); ok {
		f["status"] = strings.ToLower(s)
	}
	if o, ok := f["outcome"].(string); ok {
		o = strings.ToLower(o)
		if knownOutcomes[o] {
			f["outcome"] = o
		} else {
			delete(f, "outcome")
		}
	}
}

var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "ts_unix_nano",
	"update_id", "user_id", "chat_id", "chat_type", "handler",
	"command", "account_id", "step", "next_step", "outcome",
	"duration_ms", "messages", "kb",
	"issue_id", "project_id", "attribute", "details", "group_id", "count",
	"payload", "lang", "username",
	"mode", "listen", "public_url", "http_code", "db", "host", "port",
	"err", "err_code", "cause", "retryable", "attempts", "backoff_ms", "rate_limited",
}
