// Package state persists multi-turn conversation sessions for Telegram bots.
// A session is keyed by (command name, account) and carries an ordered step
// plus string data; nothing else survives between messages. The package is
// domain-agnostic so it can be reused across bots.
package state
