package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/issuebot/core/logger"
	"github.com/m3rciful/issuebot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var dispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher routes helper sends through d. Passing nil restores direct sends.
func SetDispatcher(d *sender.Dispatcher) {
	dispatcher.Store(d)
}

// Outgoing is one message of a multi-message reply.
type Outgoing struct {
	Text string
	Opts *tele.SendOptions
}

func (o Outgoing) send(c tele.Context) error {
	if o.Opts == nil {
		return c.Send(o.Text)
	}
	return c.Send(o.Text, o.Opts)
}

// SendText sends raw text to the current chat.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	msg := Outgoing{Text: text}
	if len(opts) > 0 {
		msg.Opts = opts[0]
	}
	return SendAll(c, msg)
}

// SendAll delivers msgs in order as one job. A retried job resumes after the
// last delivered message, so nothing is sent twice.
func SendAll(c tele.Context, msgs ...Outgoing) error {
	if len(msgs) == 0 {
		return nil
	}
	next := 0
	return enqueue(c, "send.text", "sendMessage", func() error {
		for ; next < len(msgs); next++ {
			if err := msgs[next].send(c); err != nil {
				return err
			}
		}
		return nil
	})
}

// enqueue hands run to the dispatcher. A full or closed queue degrades to a
// synchronous send.
func enqueue(c tele.Context, action, endpoint string, run func() error) error {
	d := dispatcher.Load()
	if d == nil {
		return run()
	}
	ctx := BuildContext(c)
	err := d.Enqueue(ctx, action, endpoint, run)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sender.ErrQueueFull), errors.Is(err, sender.ErrQueueClosed):
		logger.Warn(ctx, logger.CompSender, "queue.fallback",
			slog.String("action", action),
			slog.String("endpoint", endpoint),
			slog.String("err", err.Error()),
		)
		return run()
	default:
		return err
	}
}
