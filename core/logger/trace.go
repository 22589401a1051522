package logger

import (
	"context"
	"log/slog"
)

type traceKey struct{}

// Trace holds the correlation identifiers stamped on every record logged with a context.
// Explicit attributes on a record win over the trace.
type Trace struct {
	RID        string
	UpdateID   int
	TelegramID int64
	ChatID     int64
	Handler    string
	Command    string
	AccountID  int64
}

// TraceFrom returns the trace stored in ctx, or the zero Trace.
func TraceFrom(ctx context.Context) Trace {
	if ctx == nil {
		return Trace{}
	}
	t, _ := ctx.Value(traceKey{}).(Trace)
	return t
}

func withTrace(ctx context.Context, edit func(*Trace)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	t := TraceFrom(ctx)
	edit(&t)
	return context.WithValue(ctx, traceKey{}, t)
}

// WithRID sets the correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withTrace(ctx, func(t *Trace) { t.RID = rid })
}

// RIDFrom returns the correlation id, if any.
func RIDFrom(ctx context.Context) string {
	return TraceFrom(ctx).RID
}

// WithUpdate records the Telegram update, sender and chat behind ctx.
func WithUpdate(ctx context.Context, updateID int, telegramID, chatID int64) context.Context {
	return withTrace(ctx, func(t *Trace) {
		t.UpdateID = updateID
		t.TelegramID = telegramID
		t.ChatID = chatID
	})
}

// WithHandler names the Telegram handler serving ctx.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		return ctx
	}
	return withTrace(ctx, func(t *Trace) { t.Handler = handler })
}

// WithSession ties ctx to the conversation of an account.
func WithSession(ctx context.Context, command string, accountID int64) context.Context {
	return withTrace(ctx, func(t *Trace) {
		t.Command = command
		t.AccountID = accountID
	})
}

// Attrs renders the non-empty identifiers as slog attributes.
func (t Trace) Attrs() []slog.Attr {
	var attrs []slog.Attr
	t.each(func(key string, val any) {
		attrs = append(attrs, slog.Any(key, val))
	})
	return attrs
}

func (t Trace) each(fn func(key string, val any)) {
	if t.RID != "" {
		fn("rid", t.RID)
	}
	if t.UpdateID != 0 {
		fn("update_id", int64(t.UpdateID))
	}
	if t.TelegramID != 0 {
		fn("user_id", t.TelegramID)
	}
	if t.ChatID != 0 {
		fn("chat_id", t.ChatID)
	}
	if t.Handler != "" {
		fn("handler", t.Handler)
	}
	if t.Command != "" {
		fn("command", t.Command)
	}
	if t.AccountID != 0 {
		fn("account_id", t.AccountID)
	}
}
