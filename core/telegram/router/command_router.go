package router

import (
	"context"
	"log/slog"

	"github.com/m3rciful/issuebot/core/logger"
	tg "github.com/m3rciful/issuebot/core/telegram"
	"github.com/m3rciful/issuebot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures admin-only commands.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes returns one route per command and per alias. An alias shares its command's handler.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	adminOnly := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	})

	handlers := make(map[string]tele.HandlerFunc, len(reg.Commands()))
	routes := make([]tg.Route, 0, len(reg.Commands())+len(reg.Aliases()))
	for name, cmd := range reg.Commands() {
		label, inner := handlerName(name), cmd.Handler
		h := func(c tele.Context) error { return served(c, label, inner) }
		if cmd.AdminOnly {
			h = adminOnly(h)
		}
		handlers[name] = middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
		routes = append(routes, tg.Route{Endpoint: name, Handler: handlers[name]})
	}
	for alias, name := range reg.Aliases() {
		routes = append(routes, tg.Route{Endpoint: alias, Handler: handlers[name]})
	}

	logger.Info(context.Background(), logger.CompWire, "tg.wire",
		slog.Int("commands", len(reg.Commands())),
		slog.Int("count", len(reg.Aliases())),
	)
	return routes
}
