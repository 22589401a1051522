package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/issuebot/core/config"
	"github.com/m3rciful/issuebot/core/logger"
	tghelpers "github.com/m3rciful/issuebot/core/telegram/helpers"
	tgsender "github.com/m3rciful/issuebot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Middleware is a named global middleware installed with bot.Use.
type Middleware struct {
	Name string
	Use  tele.MiddlewareFunc
}

// Route binds a handler to any endpoint accepted by tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions describes one bot process.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	Sender tgsender.Options

	Middlewares []Middleware
	Routes      []Route

	// OnStart runs after routes are installed and before updates are polled.
	OnStart func(ctx context.Context, rt Runtime) error
	// OnStop runs after polling stopped and before the sender drains.
	OnStop func(ctx context.Context, rt Runtime) error
}

// Runtime is what lifecycle hooks get to work with.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// NewAPIClient returns a bot for direct API calls; it never polls.
func NewAPIClient(cfg *coreconfig.Config) (*tele.Bot, error) {
	if cfg == nil {
		return nil, errors.New("telegram: nil config provided")
	}
	return newBot(cfg, nil)
}

func newBot(cfg *coreconfig.Config, poller tele.Poller) (*tele.Bot, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  poller,
		Client:  newHTTPClient(cfg),
		Offline: poller == nil,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return bot, nil
}

// RunTelegram serves updates until ctx is cancelled. Cancellation is a clean stop.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if opts.Config == nil {
		return errors.New("telegram: nil config provided")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	start := time.Now()
	poller := newPoller(opts.Config)
	bot, err := newBot(opts.Config, poller)
	if err != nil {
		return err
	}
	logMode(ctx, bot, poller, time.Since(start))

	rt := Runtime{Bot: bot, Dispatcher: tgsender.NewDispatcher(opts.Sender), Registry: reg}
	tghelpers.SetDispatcher(rt.Dispatcher)
	defer func() {
		rt.Dispatcher.Close()
		tghelpers.SetDispatcher(nil)
	}()

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, r := range opts.Routes {
		if r.Endpoint != nil && r.Handler != nil {
			bot.Handle(r.Endpoint, r.Handler)
		}
	}
	InitBotCommands(bot, reg)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		bot.Start()
	}()
	select {
	case <-ctx.Done():
		bot.Stop()
		<-stopped
	case <-stopped:
	}

	if opts.OnStop != nil {
		if err := opts.OnStop(context.WithoutCancel(ctx), rt); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// logMode reports how updates arrive. Long polling first drops any webhook left behind,
// since Telegram refuses getUpdates while one is set.
func logMode(ctx context.Context, bot *tele.Bot, poller tele.Poller, took time.Duration) {
	if wh, ok := poller.(*tele.Webhook); ok {
		logger.Info(ctx, logger.CompTG, "tg.mode",
			slog.String("mode", "webhook"),
			slog.String("listen", wh.Listen),
			slog.String("public_url", wh.Endpoint.PublicURL),
			slog.Duration("duration", took),
		)
		return
	}
	attrs := []slog.Attr{slog.String("mode", "polling"), slog.Duration("duration", took)}
	if lp, ok := poller.(*tele.LongPoller); ok {
		attrs = append(attrs, slog.Duration("timeout", lp.Timeout))
	}
	if err := bot.RemoveWebhook(); err != nil {
		attrs = append(attrs, slog.String("status", "fail"), slog.String("err", err.Error()))
		logger.Warn(ctx, logger.CompTG, "tg.mode", attrs...)
		return
	}
	logger.Info(ctx, logger.CompTG, "tg.mode", attrs...)
}
