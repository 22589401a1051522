package helpers

import (
	"context"

	"github.com/m3rciful/issuebot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const ctxKey = "issuebot.ctx"

// BuildContext returns the context of the current update, creating it on first use.
// It carries the update's correlation id and Telegram identifiers for logging.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := c.Get(ctxKey).(context.Context); ok {
		return ctx
	}
	var userID, chatID int64
	if u := c.Sender(); u != nil {
		userID = u.ID
	}
	if ch := c.Chat(); ch != nil {
		chatID = ch.ID
	}
	updateID := c.Update().ID
	ctx := logger.WithRID(context.Background(), logger.BuildRID(updateID, chatID, userID))
	ctx = logger.WithUpdate(ctx, updateID, userID, chatID)
	c.Set(ctxKey, ctx)
	return ctx
}

// WithHandler names the handler in the update context.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := logger.WithHandler(BuildContext(c), handler)
	c.Set(ctxKey, ctx)
	return ctx
}
