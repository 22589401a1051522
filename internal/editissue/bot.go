package editissue

import (
	"errors"
	"log/slog"

	"github.com/m3rciful/issuebot/core/logger"
	tg "github.com/m3rciful/issuebot/core/telegram"
	"github.com/m3rciful/issuebot/core/telegram/commands"
	tghelpers "github.com/m3rciful/issuebot/core/telegram/helpers"
	"github.com/m3rciful/issuebot/core/telegram/keyboard"
	"github.com/m3rciful/issuebot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// Languages picks the catalog language for a Telegram language code.
type Languages interface {
	Match(code string) string
}

// Bot adapts the Dispatcher to Telegram updates.
type Bot struct {
	dispatcher *Dispatcher
	tr         Translator
	langs      Languages
}

// NewBot builds the Telegram adapter.
func NewBot(d *Dispatcher, tr Translator, langs Languages) *Bot {
	return &Bot{dispatcher: d, tr: tr, langs: langs}
}

// Register exposes /issue and /cancel and lets mgr route follow-up text to the conversation.
func (b *Bot) Register(reg *tg.Registry, mgr *state.Manager) error {
	err := errors.Join(
		reg.RegisterCommand("/"+CommandName, commands.Command{
			Handler:     b.HandleIssue,
			Description: "Edit an issue",
			Aliases:     []string{"task"},
		}),
		reg.RegisterCommand(keyboard.CancelToken, commands.Command{
			Handler:     b.HandleCancel,
			Description: "Cancel the current dialog",
		}),
	)
	if mgr != nil {
		mgr.RegisterHandler(CommandName, b.HandleIssue)
	}
	return err
}

func (b *Bot) lang(c tele.Context) string {
	if s := c.Sender(); s != nil {
		return b.langs.Match(s.LanguageCode)
	}
	return b.langs.Match("")
}

// HandleIssue runs one conversation turn for the sender.
func (b *Bot) HandleIssue(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	replies, err := b.dispatcher.Handle(ctx, Message{
		TelegramID: c.Sender().ID,
		Text:       c.Text(),
		Lang:       b.lang(c),
	})
	if err != nil {
		logger.Error(ctx, logger.CompEditIssue, "turn.handle",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendAll(c, tghelpers.Outgoing{
			Text: b.tr.T(b.lang(c), "bot.error_editing_issue"),
			Opts: &tele.SendOptions{ReplyMarkup: keyboard.RemoveKeyboard()},
		})
	}
	return tghelpers.SendAll(c, outgoing(replies)...)
}

// HandleCancel drops every open conversation of the sender.
func (b *Bot) HandleCancel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	n, err := b.dispatcher.Cancel(ctx, c.Sender().ID)
	if err != nil {
		return err
	}
	logger.Info(ctx, logger.CompEditIssue, "turn.cancelled",
		slog.String("status", "ok"),
		slog.Int("sessions", n),
	)
	return tghelpers.SendAll(c, tghelpers.Outgoing{
		Text: b.tr.T(b.lang(c), "bot.cancelled"),
		Opts: &tele.SendOptions{ReplyMarkup: keyboard.RemoveKeyboard()},
	})
}

func outgoing(replies []Reply) []tghelpers.Outgoing {
	out := make([]tghelpers.Outgoing, 0, len(replies))
	for _, r := range replies {
		opts := &tele.SendOptions{}
		if r.HTML {
			opts.ParseMode = tele.ModeHTML
		}
		switch {
		case len(r.Keyboard) > 0:
			opts.ReplyMarkup = keyboard.ReplyKeyboard(r.Keyboard)
		case r.RemoveKeyboard:
			opts.ReplyMarkup = keyboard.RemoveKeyboard()
		}
		out = append(out, tghelpers.Outgoing{Text: r.Text, Opts: opts})
	}
	return out
}
