package commands

import tele "gopkg.in/telebot.v4"

// Command is a registry entry. Hidden and AdminOnly commands stay routable but
// are left out of the menu published to Telegram.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
	// Aliases are extra names, with or without the leading slash.
	Aliases []string
}
