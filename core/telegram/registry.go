package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/m3rciful/issuebot/core/logger"
	"github.com/m3rciful/issuebot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrInvalidCommand rejects commands without a handler, a description or a leading slash.
	ErrInvalidCommand = errors.New("telegram: invalid command")
	// ErrDuplicateCommand rejects a name or alias that is already taken.
	ErrDuplicateCommand = errors.New("telegram: duplicate command")
)

// Registry maps slash commands and their aliases to handlers.
type Registry struct {
	commands map[string]commands.Command
	aliases  map[string]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]commands.Command),
		aliases:  make(map[string]string),
	}
}

// RegisterCommand adds cmd under name ("/issue"). Aliases may omit the slash.
// An alias clashing with an existing name is skipped; the command itself is kept.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	err := r.register(name, cmd)
	if err != nil {
		logger.Warn(context.Background(), logger.CompWire, "register.command",
			slog.String("status", "skip"),
			slog.String("command", name),
			slog.String("err", err.Error()),
		)
	}
	return err
}

func (r *Registry) register(name string, cmd commands.Command) error {
	if cmd.Handler == nil || cmd.Description == "" || !strings.HasPrefix(name, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidCommand, name)
	}
	if r.taken(name) {
		return fmt.Errorf("%w: %q", ErrDuplicateCommand, name)
	}
	r.commands[name] = cmd
	for _, alias := range cmd.Aliases {
		alias = "/" + strings.TrimPrefix(alias, "/")
		if r.taken(alias) {
			logger.Warn(context.Background(), logger.CompWire, "register.alias",
				slog.String("status", "skip"),
				slog.String("command", name),
				slog.String("details", alias),
			)
			continue
		}
		r.aliases[alias] = name
	}
	return nil
}

func (r *Registry) taken(name string) bool {
	_, isCmd := r.commands[name]
	_, isAlias := r.aliases[name]
	return isCmd || isAlias
}

// Commands returns the registered commands by canonical name.
func (r *Registry) Commands() map[string]commands.Command {
	return r.commands
}

// Aliases maps every alias endpoint to its canonical command name.
func (r *Registry) Aliases() map[string]string {
	return r.aliases
}

// ListCommands returns the menu entries sorted by name, optionally without hidden and admin commands.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	var list []tele.Command
	for name, cmd := range r.commands {
		if visibleOnly && (cmd.Hidden || cmd.AdminOnly) {
			continue
		}
		list = append(list, tele.Command{Text: name, Description: cmd.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// LookupCommand resolves the leading "/name[@bot]" token of text to its canonical command.
// Text without a leading slash never matches.
func (r *Registry) LookupCommand(text string) (string, commands.Command, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", commands.Command{}, false
	}
	token, _, _ := strings.Cut(fields[0], "@")
	if token == "/" {
		return "", commands.Command{}, false
	}
	if canonical, ok := r.aliases[token]; ok {
		token = canonical
	}
	cmd, ok := r.commands[token]
	if !ok {
		return "", commands.Command{}, false
	}
	return token, cmd, true
}

// InitBotCommands publishes the visible commands as the bot menu.
func InitBotCommands(bot *tele.Bot, reg *Registry) {
	if err := bot.SetCommands(reg.ListCommands(true)); err != nil {
		logger.Error(context.Background(), logger.CompWire, "register.commands",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}
