package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/issuebot/core/logger"
	tghelpers "github.com/m3rciful/issuebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// seenUpdates remembers recently logged update ids; the chain may run twice for one update.
type seenUpdates struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[int]time.Time
}

func (s *seenUpdates) first(id int, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, at := range s.seen {
		if now.Sub(at) > s.ttl {
			delete(s.seen, k)
		}
	}
	if _, dup := s.seen[id]; dup {
		return false
	}
	s.seen[id] = now
	return true
}

var received = &seenUpdates{ttl: 10 * time.Second, seen: make(map[int]time.Time)}

// LoggerMiddleware prepares the update context and logs a sampled update.received line.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		if logger.SampleDebug() && received.first(c.Update().ID, time.Now()) {
			logger.Debug(ctx, logger.CompTG, "update.received", updateAttrs(c)...)
		}
		return next(c)
	}
}

func updateAttrs(c tele.Context) []slog.Attr {
	attrs := []slog.Attr{slog.String("status", "ok")}
	if ch := c.Chat(); ch != nil {
		attrs = append(attrs, slog.String("chat_type", string(ch.Type)))
	}
	if u := c.Sender(); u != nil {
		attrs = append(attrs,
			slog.String("username", logger.Clip(u.Username, 64)),
			slog.String("lang", u.LanguageCode),
		)
	}
	if c.Message() != nil {
		attrs = append(attrs, slog.String("payload", logger.Clip(c.Text(), 256)))
	}
	return attrs
}
