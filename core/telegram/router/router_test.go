package router

import (
	"context"
	"errors"
	"testing"

	tg "github.com/m3rciful/issuebot/core/telegram"
	"github.com/m3rciful/issuebot/core/telegram/commands"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type fakeContext struct {
	tele.Context
	text   string
	sender *tele.User
	store  map[string]any
}

func newFakeContext(text string, userID int64) *fakeContext {
	return &fakeContext{text: text, sender: &tele.User{ID: userID}, store: map[string]any{}}
}

func (f *fakeContext) Text() string           { return f.text }
func (f *fakeContext) Sender() *tele.User     { return f.sender }
func (f *fakeContext) Chat() *tele.Chat       { return &tele.Chat{ID: f.sender.ID, Type: tele.ChatPrivate} }
func (f *fakeContext) Update() tele.Update    { return tele.Update{ID: 1} }
func (f *fakeContext) Message() *tele.Message { return &tele.Message{Text: f.text} }
func (f *fakeContext) Get(key string) any     { return f.store[key] }
func (f *fakeContext) Set(key string, v any)  { f.store[key] = v }

type conversations struct {
	open    map[int64]bool
	handled []string
}

func (c *conversations) InProgress(_ context.Context, id int64) bool { return c.open[id] }

func (c *conversations) ManagerHandler(ctx tele.Context) error {
	c.handled = append(c.handled, ctx.Text())
	return nil
}

func textRoute(t *testing.T, routes []tg.Route) tele.HandlerFunc {
	t.Helper()
	for _, r := range routes {
		if r.Endpoint == tele.OnText {
			return r.Handler
		}
	}
	t.Fatal("no text route")
	return nil
}

func TestTextRoutesPriority(t *testing.T) {
	var called []string
	reg := tg.NewRegistry()
	require.NoError(t, reg.RegisterCommand("/cancel", commands.Command{
		Description: "Cancel",
		Handler:     func(tele.Context) error { called = append(called, "cancel"); return nil },
	}))
	conv := &conversations{open: map[int64]bool{7: true}}
	h := textRoute(t, TextRoutes(conv, reg, TextOptions{
		UnknownText: func(c tele.Context) error { called = append(called, "unknown:"+c.Text()); return nil },
	}))

	require.NoError(t, h(newFakeContext("/cancel", 7)))
	require.NoError(t, h(newFakeContext("#42", 7)))
	require.NoError(t, h(newFakeContext("#42", 8)))

	assert.Equal(t, []string{"cancel", "unknown:#42"}, called)
	assert.Equal(t, []string{"#42"}, conv.handled, "plain text reaches the open conversation")
}

func TestTextRoutesWithoutFallback(t *testing.T) {
	h := textRoute(t, TextRoutes(nil, nil, TextOptions{}))
	assert.NoError(t, h(newFakeContext("hello", 1)))
}

func TestCommandRoutesAdminAndAliases(t *testing.T) {
	var ran, rejected int
	reg := tg.NewRegistry()
	require.NoError(t, reg.RegisterCommand("/kick_locked", commands.Command{
		Description: "Kick",
		AdminOnly:   true,
		Aliases:     []string{"kick"},
		Handler:     func(tele.Context) error { ran++; return nil },
	}))
	routes := CommandRoutes(reg, CommandRouteOptions{
		AdminID:       1,
		OnAdminReject: func(tele.Context) error { rejected++; return nil },
	})
	require.Len(t, routes, 2)

	for _, r := range routes {
		require.NoError(t, r.Handler(newFakeContext("/kick", 1)))
		require.NoError(t, r.Handler(newFakeContext("/kick", 2)))
	}
	assert.Equal(t, 2, ran)
	assert.Equal(t, 2, rejected)
}

type codedErr struct{}

func (codedErr) Error() string { return "tracker down" }
func (codedErr) Code() string  { return "tracker unavailable" }

type plainErr struct{}

func (*plainErr) Error() string { return "plain" }

func TestErrCodeAndHandlerName(t *testing.T) {
	assert.Equal(t, "TRACKER_UNAVAILABLE", errCode(codedErr{}))
	assert.Equal(t, "PLAINERR", errCode(&plainErr{}))
	assert.Equal(t, "ERRORSTRING", errCode(errors.New("x")))

	assert.Equal(t, "kick_locked", handlerName("/Kick Locked"))
	assert.Equal(t, "unknown", handlerName(" / "))
}
