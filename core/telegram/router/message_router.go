package router

import (
	"context"

	tg "github.com/m3rciful/issuebot/core/telegram"
	tghelpers "github.com/m3rciful/issuebot/core/telegram/helpers"
	"github.com/m3rciful/issuebot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Conversations is the part of the session manager the text router needs.
type Conversations interface {
	InProgress(ctx context.Context, telegramID int64) bool
	ManagerHandler(c tele.Context) error
}

// TextOptions holds the handlers for updates nobody claims.
type TextOptions struct {
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
}

// TextRoutes routes plain text and documents. Priority: a command typed as text
// (so /cancel always works mid-dialog), then the sender's open conversation, then the fallback.
func TextRoutes(conv Conversations, reg *tg.Registry, opts TextOptions) []tg.Route {
	inDialog := func(c tele.Context) bool {
		return conv != nil && c.Sender() != nil && conv.InProgress(tghelpers.BuildContext(c), c.Sender().ID)
	}
	fallback := func(c tele.Context, name string, h tele.HandlerFunc) error {
		if h == nil {
			return skipped(c, name)
		}
		return served(c, name, h)
	}

	text := func(c tele.Context) error {
		if reg != nil {
			if name, cmd, ok := reg.LookupCommand(c.Text()); ok {
				return served(c, handlerName(name), cmd.Handler)
			}
		}
		if inDialog(c) {
			return served(c, "fsm", conv.ManagerHandler)
		}
		return fallback(c, "unknown_text", opts.UnknownText)
	}
	document := func(c tele.Context) error {
		if inDialog(c) {
			return served(c, "fsm_document", conv.ManagerHandler)
		}
		return fallback(c, "unexpected_document", opts.UnknownDocument)
	}

	wrap := func(h tele.HandlerFunc) tele.HandlerFunc {
		return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
	}
	return []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(text)},
		{Endpoint: tele.OnDocument, Handler: wrap(document)},
	}
}
