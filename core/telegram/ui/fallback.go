package ui

import tele "gopkg.in/telebot.v4"

// FallbackProvider answers updates no route claimed: text that is neither a
// known command nor part of an open dialog, and documents nobody asked for.
type FallbackProvider interface {
	UnknownText() tele.HandlerFunc
	UnknownDocument() tele.HandlerFunc
}
