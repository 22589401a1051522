// Package app wires the issue bot: configuration, storage, conversations and Telegram routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/issuebot/core/bootstrap"
	corecmd "github.com/m3rciful/issuebot/core/cmd"
	coreconfig "github.com/m3rciful/issuebot/core/config"
	"github.com/m3rciful/issuebot/core/logger"
	"github.com/m3rciful/issuebot/core/metrics"
	tg "github.com/m3rciful/issuebot/core/telegram"
	tghelpers "github.com/m3rciful/issuebot/core/telegram/helpers"
	"github.com/m3rciful/issuebot/core/telegram/router"
	"github.com/m3rciful/issuebot/core/telegram/state"
	"github.com/m3rciful/issuebot/core/telegram/ui"
	"github.com/m3rciful/issuebot/internal/editissue"
	"github.com/m3rciful/issuebot/internal/groups"
	"github.com/m3rciful/issuebot/internal/locale"
	"github.com/m3rciful/issuebot/internal/mutation"
	"github.com/m3rciful/issuebot/internal/tracker"

	tele "gopkg.in/telebot.v4"
)

// App holds the wired services.
type App struct {
	cfg     *Config
	db      *sqlx.DB
	catalog *locale.Catalog

	tracker  *tracker.Store
	sessions state.Store
	manager  *state.Manager
	registry *tg.Registry

	groups *groups.Service
}

// Bootstrap initializes logging, the database and migrations, then wires the App.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	a, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Open runs the bootstrap pipeline and wires the App on the resulting database.
func Open(cfg *Config) (*App, error) {
	res, err := bootstrap.Run(bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}
	a, err := New(cfg, res.DB)
	if err != nil {
		_ = res.DB.Close()
		return nil, err
	}
	return a, nil
}

// New wires every service on top of an open database.
func New(cfg *Config, db *sqlx.DB) (*App, error) {
	catalog, err := locale.Load(cfg.Locale.Default)
	if err != nil {
		return nil, err
	}
	store := tracker.NewStore(db)

	var sessions state.Store
	if cfg.Sessions.Store == SessionStoreMemory {
		sessions = state.NewMemoryStore()
	} else {
		sessions = state.NewPostgresStore(db)
	}

	a := &App{
		cfg:      cfg,
		db:       db,
		catalog:  catalog,
		tracker:  store,
		sessions: sessions,
		manager:  state.NewManager(sessions, store),
		registry: tg.NewRegistry(),
		groups:   groups.NewService(store, catalog, catalog.Default()),
	}
	a.groups.SetCloseNotice(cfg.Chat.CloseMessage)

	engine, err := editissue.NewEngine(store, mutation.NewService(store), a.groups, catalog, editissue.Config{
		BaseURL:   cfg.Tracker.BaseURL,
		HotWindow: cfg.HotWindow(),
		ListLimit: cfg.Tracker.ListLimit,
	})
	if err != nil {
		return nil, err
	}
	dispatcher := editissue.NewDispatcher(sessions, store, engine, catalog)
	if err := errors.Join(
		editissue.NewBot(dispatcher, catalog, catalog).Register(a.registry, a.manager),
		groups.NewBot(a.groups, store, catalog, catalog).Register(a.registry),
	); err != nil {
		return nil, err
	}

	logger.Info(context.Background(), logger.CompApp, "app.wired",
		slog.String("status", "ok"),
		slog.String("sessions", cfg.Sessions.Store),
		slog.String("locale", catalog.Default()),
		slog.Int("commands", len(a.registry.Commands())),
	)
	return a, nil
}

// TelegramRunOptions assembles routes, middlewares and lifecycle hooks.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	fb := fallback{tr: a.catalog}

	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID:       a.cfg.Telegram.AdminID,
		OnAdminReject: fb.denied,
	})
	routes = append(routes, router.TextRoutes(a.manager, a.registry, router.TextOptions{
		UnknownText:     fb.UnknownText(),
		UnknownDocument: fb.UnknownDocument(),
	})...)

	return tg.RunOptions{
		Config:      a.CoreConfig(),
		Registry:    a.registry,
		Middlewares: tg.DefaultMiddlewares(a.CoreConfig(), nil),
		Routes:      routes,
		OnStart:     a.start,
		OnStop:      a.stop,
	}, nil
}

// CoreConfig exposes the core part of the configuration.
func (a *App) CoreConfig() *coreconfig.Config { return a.cfg.CoreConfig() }

func (a *App) start(ctx context.Context, rt tg.Runtime) error {
	a.groups.Bind(rt.Bot)

	go func() {
		if err := metrics.Serve(ctx, a.cfg.Metrics.Listen, a.cfg.Metrics.Path); err != nil {
			logger.Error(ctx, logger.CompApp, "metrics.serve",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}()
	if a.cfg.Chat.KickLocked {
		go a.groups.RunKickLoop(ctx, a.cfg.KickInterval())
	}
	return nil
}

func (a *App) stop(ctx context.Context, rt tg.Runtime) error {
	if rt.Dispatcher != nil {
		logger.Info(ctx, logger.CompApp, "sender.summary",
			slog.Uint64("failed_jobs", rt.Dispatcher.ErrorCount()),
		)
	}
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Groups binds a bot API client outside the polling runtime, for one-off jobs.
func (a *App) Groups() (*groups.Service, error) {
	bot, err := tg.NewAPIClient(a.CoreConfig())
	if err != nil {
		return nil, err
	}
	a.groups.Bind(bot)
	return a.groups, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.stop(context.Background(), tg.Runtime{})
}

// fallback answers updates no command or conversation claimed.
type fallback struct {
	tr *locale.Catalog
}

var _ ui.FallbackProvider = fallback{}

func (f fallback) lang(c tele.Context) string {
	if s := c.Sender(); s != nil {
		return f.tr.Match(s.LanguageCode)
	}
	return f.tr.Default()
}

func (f fallback) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, f.tr.T(f.lang(c), "bot.edit_issue.help"))
	}
}

func (f fallback) UnknownDocument() tele.HandlerFunc {
	return f.UnknownText()
}

func (f fallback) denied(c tele.Context) error {
	return tghelpers.SendText(c, f.tr.T(f.lang(c), "bot.access_denied"))
}
