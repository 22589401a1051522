// Package keyboard lays out reply keyboards for guided conversations.
package keyboard

import tele "gopkg.in/telebot.v4"

// CancelToken is the literal option that aborts a conversation.
const CancelToken = "/cancel"

const perRow = 2

// Build appends CancelToken to options and splits the result into rows of two.
func Build(options []string) [][]string {
	items := make([]string, 0, len(options)+1)
	items = append(items, options...)
	items = append(items, CancelToken)

	rows := make([][]string, 0, (len(items)+perRow-1)/perRow)
	for i := 0; i < len(items); i += perRow {
		end := min(i+perRow, len(items))
		rows = append(rows, items[i:end:end])
	}
	return rows
}

// ReplyKeyboard renders rows as a one-time, resized reply keyboard.
func ReplyKeyboard(rows [][]string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	keyboard := make([]tele.Row, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tele.Btn, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, markup.Text(label))
		}
		keyboard = append(keyboard, markup.Row(buttons...))
	}
	markup.Reply(keyboard...)
	return markup
}

// RemoveKeyboard returns a markup that hides the keyboard.
func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}
