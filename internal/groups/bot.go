package groups

import (
	"context"
	"log/slog"

	"github.com/m3rciful/issuebot/core/logger"
	tg "github.com/m3rciful/issuebot/core/telegram"
	"github.com/m3rciful/issuebot/core/telegram/commands"
	tghelpers "github.com/m3rciful/issuebot/core/telegram/helpers"
	"github.com/m3rciful/issuebot/internal/tracker"

	tele "gopkg.in/telebot.v4"
)

// Users resolves the tracker user behind a Telegram sender.
type Users interface {
	GetUserByTelegramID(ctx context.Context, telegramID int64) (tracker.User, error)
}

// Bot exposes group maintenance as admin commands.
type Bot struct {
	svc   *Service
	users Users
	tr    Translator
	langs interface{ Match(string) string }
}

// NewBot builds the command adapter.
func NewBot(svc *Service, users Users, tr Translator, langs interface{ Match(string) string }) *Bot {
	return &Bot{svc: svc, users: users, tr: tr, langs: langs}
}

// Register adds /kick_locked.
func (b *Bot) Register(reg *tg.Registry) error {
	return reg.RegisterCommand("/kick_locked", commands.Command{
		Handler:     b.HandleKickLocked,
		Description: "Remove locked users from issue chats",
		AdminOnly:   true,
	})
}

// HandleKickLocked runs one kick pass when the sender is a tracker administrator.
func (b *Bot) HandleKickLocked(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	lang := b.langs.Match(c.Sender().LanguageCode)

	user, err := tghelpers.CurrentUser[tracker.User](ctx, b.users, c.Sender().ID)
	if err != nil || !user.Admin {
		status := "denied"
		if err != nil {
			status = "fail"
		}
		logger.Warn(ctx, logger.CompGroups, "kick_locked.command",
			slog.String("status", status),
			slog.Int64("user_id", user.ID),
		)
		return tghelpers.SendText(c, b.tr.T(lang, "bot.access_denied"))
	}

	n, err := b.svc.KickLocked(ctx)
	if err != nil {
		return err
	}
	return tghelpers.SendText(c, b.tr.T(lang, "bot.kick_locked_done", n))
}
