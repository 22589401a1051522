// Package groups manages the Telegram chats linked to issues: renaming them,
// closing them and removing members whose tracker user is locked.
package groups

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/issuebot/core/logger"
	"github.com/m3rciful/issuebot/core/metrics"
	"github.com/m3rciful/issuebot/internal/tracker"

	tele "gopkg.in/telebot.v4"
)

// ErrNotBound is returned when no bot API has been attached yet.
var ErrNotBound = errors.New("groups: bot api not bound")

// API is the part of the Telegram bot API used on groups; *tele.Bot satisfies it.
type API interface {
	SetGroupTitle(chat *tele.Chat, title string) error
	ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error)
	Ban(chat *tele.Chat, member *tele.ChatMember, revokeMessages ...bool) error
	Unban(chat *tele.Chat, user *tele.User, forBanned ...bool) error
	InviteLink(chat *tele.Chat) (string, error)
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Repository is the tracker data the service reads and writes.
type Repository interface {
	Issue(ctx context.Context, id int64) (tracker.Issue, error)
	User(ctx context.Context, id int64) (tracker.User, error)
	GroupForIssue(ctx context.Context, issueID int64) (tracker.Group, error)
	Groups(ctx context.Context) ([]tracker.Group, error)
	DeleteGroup(ctx context.Context, id int64) error
	ArchiveMessage(ctx context.Context, m tracker.ArchivedMessage) error
	Accounts(ctx context.Context) ([]tracker.Account, error)
	LockedAccounts(ctx context.Context) ([]tracker.Account, error)
	AddNote(ctx context.Context, issueID, authorID int64, notes string) (tracker.Journal, error)
}

// Translator resolves locale strings.
type Translator interface {
	T(lang, key string, args ...any) string
}

// Service performs group actions through a bound bot API.
type Service struct {
	repo Repository
	tr   Translator
	lang string
	now  func() time.Time
	// notice overrides the localized close notice when set.
	notice string

	mu  sync.RWMutex
	api API
}

// NewService builds a Service; lang selects the language of chat notices and journal notes.
func NewService(repo Repository, tr Translator, lang string) *Service {
	return &Service{repo: repo, tr: tr, lang: lang, now: time.Now}
}

// SetCloseNotice replaces the text posted to a chat when it is closed.
func (s *Service) SetCloseNotice(text string) {
	s.notice = text
}

// Bind attaches the bot API once the bot is running.
func (s *Service) Bind(api API) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.api = api
}

func (s *Service) bound() (API, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.api == nil {
		return nil, ErrNotBound
	}
	return s.api, nil
}

// RenameChat sets the title of the group chat.
func (s *Service) RenameChat(ctx context.Context, group tracker.Group, title string) (err error) {
	defer func() { metrics.GroupAction("rename", err) }()
	api, err := s.bound()
	if err != nil {
		return err
	}
	if err = api.SetGroupTitle(&tele.Chat{ID: group.TelegramID}, title); err != nil {
		return fmt.Errorf("groups: rename chat %d: %w", group.TelegramID, err)
	}
	logger.Info(ctx, logger.CompGroups, "chat.renamed",
		slog.String("status", "ok"),
		slog.Int64("issue_id", group.IssueID),
		slog.Int64("chat_id", group.TelegramID),
	)
	return nil
}

// CloseChat retires the chat of an issue. userID 0 acts anonymously and posts no notice.
// A missing issue or group is not an error.
func (s *Service) CloseChat(ctx context.Context, issueID, userID int64) (err error) {
	ctx = workerContext(ctx)
	defer func() { metrics.GroupAction("close", err) }()

	api, err := s.bound()
	if err != nil {
		return err
	}
	if _, err = s.repo.Issue(ctx, issueID); errors.Is(err, tracker.ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	group, err := s.repo.GroupForIssue(ctx, issueID)
	if errors.Is(err, tracker.ErrNotFound) {
		logger.Info(ctx, logger.CompGroups, "chat.close",
			slog.String("status", "skip"),
			slog.Int64("issue_id", issueID),
		)
		return nil
	} else if err != nil {
		return err
	}

	var actor tracker.User
	if userID != 0 {
		if actor, err = s.repo.User(ctx, userID); err != nil {
			return fmt.Errorf("groups: load user %d: %w", userID, err)
		}
	}
	chat := &tele.Chat{ID: group.TelegramID}

	// Regenerating the link invalidates the old one.
	if _, err := api.InviteLink(chat); err != nil {
		s.warn(ctx, "chat.invite_reset", group, err)
	}
	if userID != 0 {
		notice := s.notice
		if notice == "" {
			notice = s.tr.T(s.lang, "bot.chat.closed_notice")
		}
		if _, err := api.Send(chat, notice); err != nil {
			s.warn(ctx, "chat.notice", group, err)
		}
	}
	if _, err = s.repo.AddNote(ctx, issueID, userID, s.tr.T(s.lang, "bot.chat.closed_note")); err != nil {
		return err
	}

	accounts, err := s.repo.Accounts(ctx)
	if err != nil {
		return err
	}
	removed := 0
	for _, acc := range accounts {
		ok, err := s.kick(api, chat, acc.TelegramID)
		if err != nil {
			s.warn(ctx, "chat.kick", group, err, slog.Int64("user_id", acc.UserID))
		}
		if ok {
			removed++
		}
	}

	if err = s.repo.ArchiveMessage(ctx, tracker.ArchivedMessage{
		IssueID:       issueID,
		SentAt:        s.now(),
		Text:          s.tr.T(s.lang, "bot.chat.archived"),
		FromFirstName: actor.Firstname,
		FromLastName:  actor.Lastname,
	}); err != nil {
		return err
	}
	if err = s.repo.DeleteGroup(ctx, group.ID); err != nil {
		return err
	}
	logger.Info(ctx, logger.CompGroups, "chat.closed",
		slog.String("status", "ok"),
		slog.Int64("issue_id", issueID),
		slog.Int64("chat_id", group.TelegramID),
		slog.Int("removed", removed),
	)
	return nil
}

// KickLocked removes locked users from every linked chat and returns how many were removed.
// A failed lookup or kick is logged and the sweep moves on to the next account.
func (s *Service) KickLocked(ctx context.Context) (int, error) {
	ctx = workerContext(ctx)
	start := time.Now()
	api, err := s.bound()
	if err != nil {
		return 0, err
	}
	groups, err := s.repo.Groups(ctx)
	if err != nil {
		return 0, err
	}
	locked, err := s.repo.LockedAccounts(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, group := range groups {
		chat := &tele.Chat{ID: group.TelegramID}
		for _, acc := range locked {
			ok, err := s.kick(api, chat, acc.TelegramID)
			metrics.GroupAction("kick", err)
			if err != nil {
				s.warn(ctx, "chat.kick_locked", group, err, slog.Int64("user_id", acc.UserID))
			}
			if ok {
				total++
				logger.Info(ctx, logger.CompGroups, "chat.kicked",
					slog.String("status", "ok"),
					slog.Int64("chat_id", group.TelegramID),
					slog.Int64("user_id", acc.UserID),
				)
			}
		}
	}
	logger.Info(ctx, logger.CompGroups, "kick_locked.done",
		slog.String("status", "ok"),
		slog.Int("groups", len(groups)),
		slog.Int("locked", len(locked)),
		slog.Int("removed", total),
		slog.Duration("duration", logger.Took(start)),
	)
	return total, nil
}

// RunKickLoop calls KickLocked every interval until ctx is done.
func (s *Service) RunKickLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.KickLocked(ctx); err != nil {
				logger.Error(ctx, logger.CompGroups, "kick_locked.run",
					slog.String("status", "fail"),
					slog.String("err", err.Error()),
				)
			}
		}
	}
}

// kick removes a current member without banning them permanently.
// It reports false when the user is not in the chat.
func (s *Service) kick(api API, chat *tele.Chat, telegramID int64) (bool, error) {
	user := &tele.User{ID: telegramID}
	member, err := api.ChatMemberOf(chat, user)
	if err != nil {
		return false, err
	}
	if !present(member) {
		return false, nil
	}
	if member.User == nil {
		member.User = user
	}
	if err := api.Ban(chat, member); err != nil {
		return false, err
	}
	if err := api.Unban(chat, user, true); err != nil {
		return true, err
	}
	return true, nil
}

func present(m *tele.ChatMember) bool {
	if m == nil {
		return false
	}
	switch m.Role {
	case tele.Member, tele.Administrator, tele.Restricted:
		return true
	}
	return false
}

func (s *Service) warn(ctx context.Context, event string, group tracker.Group, err error, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("status", "fail"),
		slog.Int64("issue_id", group.IssueID),
		slog.Int64("chat_id", group.TelegramID),
		slog.String("err", err.Error()),
	}
	logger.Warn(ctx, logger.CompGroups, event, append(base, attrs...)...)
}

// workerContext gives jobs started outside a Telegram update their own rid.
func workerContext(ctx context.Context) context.Context {
	if logger.RIDFrom(ctx) != "" {
		return ctx
	}
	return logger.WithRID(ctx, uuid.NewString())
}
