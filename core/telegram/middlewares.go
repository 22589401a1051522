package telegram

import (
	"strings"
	"time"

	coreconfig "github.com/m3rciful/issuebot/core/config"
	"github.com/m3rciful/issuebot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// DefaultMiddlewares returns the global chain: recover, optional rate limit, logging, metrics.
func DefaultMiddlewares(cfg *coreconfig.Config, onLimited tele.HandlerFunc) []Middleware {
	chain := []Middleware{{Name: "recover", Use: middleware.RecoverMiddleware}}
	if cfg != nil && cfg.RateLimit.IntervalMS > 0 {
		skip := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
		for _, kind := range cfg.RateLimit.ExcludeUpdates {
			skip[strings.ToLower(strings.TrimSpace(kind))] = struct{}{}
		}
		chain = append(chain, Middleware{Name: "rate_limit", Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
			Interval:  time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond,
			Exclude:   skip,
			OnLimited: onLimited,
		})})
	}
	return append(chain,
		Middleware{Name: "logger", Use: middleware.LoggerMiddleware},
		Middleware{Name: "metrics", Use: middleware.MessageMetricsMiddleware},
	)
}
