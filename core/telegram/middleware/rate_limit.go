package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/issuebot/core/logger"
	tghelpers "github.com/m3rciful/issuebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures RateLimitMiddleware.
// Exclude holds update kinds ("message", "callback", "inline_query") that are never limited.
type RateLimitOptions struct {
	Interval  time.Duration
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

func updateKind(u tele.Update) string {
	switch {
	case u.Callback != nil:
		return "callback"
	case u.Message != nil:
		return "message"
	case u.Query != nil:
		return "inline_query"
	default:
		return "other"
	}
}

// RateLimitMiddleware drops updates that arrive sooner than Interval after the sender's previous one.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	var (
		mu       sync.Mutex
		lastSeen = make(map[int64]time.Time)
	)
	allow := func(userID int64, now time.Time) bool {
		mu.Lock()
		defer mu.Unlock()
		if last, ok := lastSeen[userID]; ok && now.Sub(last) < opts.Interval {
			return false
		}
		lastSeen[userID] = now
		return true
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			u := c.Sender()
			if u == nil || opts.Interval <= 0 {
				return next(c)
			}
			if _, skip := opts.Exclude[updateKind(c.Update())]; skip || allow(u.ID, time.Now()) {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), logger.CompTG, "tg.rate_limit",
				slog.String("status", "rate_limited"),
				slog.Duration("interval", opts.Interval),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
