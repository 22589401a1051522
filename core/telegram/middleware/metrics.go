package middleware

import (
	"sync/atomic"

	"github.com/m3rciful/issuebot/core/metrics"

	tele "gopkg.in/telebot.v4"
)

const statsKey = "issuebot.sent"

// sent counts the replies of one update.
type sent struct {
	messages atomic.Int32
	keyboard atomic.Bool
}

// countingContext records every successful Send or Reply made while handling an update.
// Sends from the async sender go through the same wrapped context.
type countingContext struct {
	tele.Context
	stats *sent
}

func (c countingContext) note(err error, opts []any) error {
	if err != nil {
		return err
	}
	kb := withKeyboard(opts)
	metrics.MessageSent(kb)
	c.stats.messages.Add(1)
	if kb {
		c.stats.keyboard.Store(true)
	}
	return nil
}

func withKeyboard(opts []any) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.ReplyMarkup:
			return v != nil
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		}
	}
	return false
}

func (c countingContext) Send(what any, opts ...any) error {
	return c.note(c.Context.Send(what, opts...), opts)
}

func (c countingContext) Reply(what any, opts ...any) error {
	return c.note(c.Context.Reply(what, opts...), opts)
}

// MessageMetricsMiddleware counts outgoing messages for the handler summary and Prometheus.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		stats := &sent{}
		c.Set(statsKey, stats)
		return next(countingContext{Context: c, stats: stats})
	}
}

// GetCounters returns how many messages the update produced and whether any carried a keyboard.
func GetCounters(c tele.Context) (int, bool) {
	if s, ok := c.Get(statsKey).(*sent); ok {
		return int(s.messages.Load()), s.keyboard.Load()
	}
	return 0, false
}
