package groups

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/issuebot/internal/tracker"
	"github.com/m3rciful/issuebot/internal/tracker/trackertest"
)

type keyEcho struct{}

func (keyEcho) T(_ string, key string, _ ...any) string { return key }

// fakeAPI keeps chat membership per chat id.
type fakeAPI struct {
	mu       sync.Mutex
	members  map[int64]map[int64]tele.MemberStatus
	titles   map[int64]string
	sent     map[int64][]string
	invites  int
	banned   []int64
	failChat int64
	// failUser makes member lookups for one user fail.
	failUser  int64
	failUnban bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		members: make(map[int64]map[int64]tele.MemberStatus),
		titles:  make(map[int64]string),
		sent:    make(map[int64][]string),
	}
}

func (f *fakeAPI) join(chat, user int64, role tele.MemberStatus) {
	if f.members[chat] == nil {
		f.members[chat] = make(map[int64]tele.MemberStatus)
	}
	f.members[chat][user] = role
}

func (f *fakeAPI) SetGroupTitle(chat *tele.Chat, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if chat.ID == f.failChat {
		return errors.New("forbidden")
	}
	f.titles[chat.ID] = title
	return nil
}

func (f *fakeAPI) ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, u := chat.(*tele.Chat), user.(*tele.User)
	if c.ID == f.failChat {
		return nil, errors.New("chat not found")
	}
	if u.ID == f.failUser {
		return nil, errors.New("user not found")
	}
	role, ok := f.members[c.ID][u.ID]
	if !ok {
		role = tele.Left
	}
	return &tele.ChatMember{Role: role, User: u}, nil
}

func (f *fakeAPI) Ban(chat *tele.Chat, member *tele.ChatMember, _ ...bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[chat.ID][member.User.ID] = tele.Kicked
	f.banned = append(f.banned, member.User.ID)
	return nil
}

func (f *fakeAPI) Unban(chat *tele.Chat, user *tele.User, _ ...bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUnban {
		return errors.New("unban failed")
	}
	f.members[chat.ID][user.ID] = tele.Left
	return nil
}

func (f *fakeAPI) InviteLink(*tele.Chat) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invites++
	return "https://t.me/+new", nil
}

func (f *fakeAPI) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat := to.(*tele.Chat)
	f.sent[chat.ID] = append(f.sent[chat.ID], what.(string))
	return &tele.Message{}, nil
}

func newService(t *testing.T) (*Service, *trackertest.Fake, *fakeAPI) {
	t.Helper()
	repo := trackertest.Seed()
	api := newFakeAPI()
	s := NewService(repo, keyEcho{}, "en")
	s.Bind(api)
	return s, repo, api
}

func TestUnboundServiceFails(t *testing.T) {
	s := NewService(trackertest.Seed(), keyEcho{}, "en")
	err := s.RenameChat(context.Background(), tracker.Group{TelegramID: 1}, "x")
	assert.ErrorIs(t, err, ErrNotBound)
	_, err = s.KickLocked(context.Background())
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestRenameChat(t *testing.T) {
	s, _, api := newService(t)
	group := tracker.Group{IssueID: trackertest.LoginIssue, TelegramID: trackertest.LoginGroupChat}

	require.NoError(t, s.RenameChat(context.Background(), group, "Login"))
	assert.Equal(t, "Login", api.titles[trackertest.LoginGroupChat])

	api.failChat = trackertest.LoginGroupChat
	assert.Error(t, s.RenameChat(context.Background(), group, "Other"))
}

func TestCloseChat(t *testing.T) {
	s, repo, api := newService(t)
	api.join(trackertest.LoginGroupChat, trackertest.AliceTelegram, tele.Member)
	api.join(trackertest.LoginGroupChat, trackertest.AdminTelegram, tele.Creator)

	require.NoError(t, s.CloseChat(context.Background(), trackertest.LoginIssue, trackertest.Alice))

	assert.Equal(t, 1, api.invites)
	assert.Equal(t, []string{"bot.chat.closed_notice"}, api.sent[trackertest.LoginGroupChat])
	assert.Equal(t, []int64{trackertest.AliceTelegram}, api.banned, "the creator cannot be removed")
	assert.Equal(t, tele.Left, api.members[trackertest.LoginGroupChat][trackertest.AliceTelegram])

	require.Len(t, repo.Journals, 1)
	assert.Equal(t, "bot.chat.closed_note", repo.Journals[0].Notes)
	assert.Equal(t, trackertest.Alice, repo.Journals[0].UserID)

	require.Len(t, repo.Archived, 1)
	assert.Equal(t, "bot.chat.archived", repo.Archived[0].Text)
	assert.Equal(t, "Alice", repo.Archived[0].FromFirstName)

	_, err := repo.GroupForIssue(context.Background(), trackertest.LoginIssue)
	assert.ErrorIs(t, err, tracker.ErrNotFound)
}

func TestCloseChatAnonymousPostsNoNotice(t *testing.T) {
	s, repo, api := newService(t)
	require.NoError(t, s.CloseChat(context.Background(), trackertest.LoginIssue, 0))
	assert.Empty(t, api.sent)
	require.Len(t, repo.Archived, 1)
	assert.Empty(t, repo.Archived[0].FromFirstName)
}

func TestCloseChatIgnoresMissing(t *testing.T) {
	s, repo, api := newService(t)
	require.NoError(t, s.CloseChat(context.Background(), 999, 0))
	require.NoError(t, s.CloseChat(context.Background(), trackertest.MobileIssue, 0))
	assert.Zero(t, api.invites)
	assert.Empty(t, repo.Journals)
}

func TestKickLocked(t *testing.T) {
	s, repo, api := newService(t)
	repo.GroupsByIssue[trackertest.MobileIssue] = tracker.Group{ID: 2, IssueID: trackertest.MobileIssue, TelegramID: -2002}
	repo.GroupsByIssue[trackertest.SecretIssue] = tracker.Group{ID: 3, IssueID: trackertest.SecretIssue, TelegramID: -3003}

	api.join(trackertest.LoginGroupChat, trackertest.CarolTelegram, tele.Member)
	api.join(trackertest.LoginGroupChat, trackertest.AliceTelegram, tele.Member)
	api.join(-2002, trackertest.CarolTelegram, tele.Restricted)
	api.failChat = -3003

	n, err := s.KickLocked(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []int64{trackertest.CarolTelegram, trackertest.CarolTelegram}, api.banned)
	assert.Equal(t, tele.Member, api.members[trackertest.LoginGroupChat][trackertest.AliceTelegram])
}

func addLockedUser(repo *trackertest.Fake, userID, telegramID int64) {
	repo.Users[userID] = tracker.User{ID: userID, Login: "dave", Status: tracker.UserLocked}
	repo.AccountList = append(repo.AccountList, tracker.Account{ID: userID + 100, TelegramID: telegramID, UserID: userID})
}

func TestKickLockedContinuesAfterFailedLookup(t *testing.T) {
	s, repo, api := newService(t)
	const dave, daveTelegram int64 = 77, 7700
	addLockedUser(repo, dave, daveTelegram)

	api.join(trackertest.LoginGroupChat, trackertest.CarolTelegram, tele.Member)
	api.join(trackertest.LoginGroupChat, daveTelegram, tele.Member)
	api.failUser = trackertest.CarolTelegram

	n, err := s.KickLocked(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{daveTelegram}, api.banned)
	assert.Equal(t, tele.Member, api.members[trackertest.LoginGroupChat][trackertest.CarolTelegram])
}

func TestKickLockedCountsBanWhenUnbanFails(t *testing.T) {
	s, _, api := newService(t)
	api.join(trackertest.LoginGroupChat, trackertest.CarolTelegram, tele.Member)
	api.failUnban = true

	n, err := s.KickLocked(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{trackertest.CarolTelegram}, api.banned)
}

func TestCloseChatCustomNotice(t *testing.T) {
	s, _, api := newService(t)
	s.SetCloseNotice("Moved to the tracker")
	require.NoError(t, s.CloseChat(context.Background(), trackertest.LoginIssue, trackertest.Alice))
	assert.Equal(t, []string{"Moved to the tracker"}, api.sent[trackertest.LoginGroupChat])
}
