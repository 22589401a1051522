package editissue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/issuebot/core/logger"
	"github.com/m3rciful/issuebot/core/telegram/state"
	"github.com/m3rciful/issuebot/internal/tracker"
)

// Message is one inbound text for the conversation.
type Message struct {
	TelegramID int64
	Text       string
	Lang       string
}

// Dispatcher resolves the sender's session, runs one turn and persists the outcome.
type Dispatcher struct {
	store  state.Store
	repo   Repository
	engine *Engine
	tr     Translator
	locks  state.KeyedMutex
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(store state.Store, repo Repository, engine *Engine, tr Translator) *Dispatcher {
	return &Dispatcher{store: store, repo: repo, engine: engine, tr: tr}
}

// Handle processes msg and returns the replies to send, in order.
// Turns of the same account are serialized.
func (d *Dispatcher) Handle(ctx context.Context, msg Message) ([]Reply, error) {
	acc, err := d.repo.AccountByTelegramID(ctx, msg.TelegramID)
	if err != nil {
		status := "not_found"
		if !errors.Is(err, tracker.ErrNotFound) {
			status = "fail"
		}
		logger.Warn(ctx, logger.CompEditIssue, "account.resolve",
			slog.String("status", status),
			slog.Int64("telegram_id", msg.TelegramID),
			slog.String("err", err.Error()),
		)
		return []Reply{{
			Text:           d.tr.T(msg.Lang, "bot.edit_issue.incorrect_value"),
			RemoveKeyboard: true,
		}}, nil
	}

	ctx = logger.WithSession(ctx, CommandName, acc.ID)
	unlock := d.locks.Lock(fmt.Sprintf("%s:%d", CommandName, acc.ID))
	defer unlock()

	sess, err := d.store.FindOrCreate(ctx, CommandName, acc.ID)
	if err != nil {
		return nil, err
	}
	prev := sess.Step
	out := d.engine.Run(ctx, sess, acc.User, msg.Text, msg.Lang)

	if out.Kind == Continue {
		sess.Step = out.Step
		sess.Data = out.Data
		if err := d.store.Save(ctx, sess); err != nil {
			return nil, err
		}
	} else if err := d.store.Delete(ctx, CommandName, acc.ID); err != nil {
		return nil, err
	}

	logger.Info(ctx, logger.CompEditIssue, "turn.handled",
		slog.String("status", "ok"),
		slog.Int("step", int(prev)),
		slog.Int("next_step", int(out.Step)),
		slog.String("outcome", out.Kind.String()),
	)
	return out.Replies, nil
}

// Cancel destroys every open session of the Telegram user.
func (d *Dispatcher) Cancel(ctx context.Context, telegramID int64) (int, error) {
	acc, err := d.repo.AccountByTelegramID(ctx, telegramID)
	if errors.Is(err, tracker.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	unlock := d.locks.Lock(fmt.Sprintf("%s:%d", CommandName, acc.ID))
	defer unlock()
	return d.store.DeleteAll(ctx, acc.ID)
}
