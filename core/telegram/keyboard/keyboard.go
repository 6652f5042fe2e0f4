// Package keyboard builds inline keyboards from plain button descriptions.
package keyboard

import tele "gopkg.in/telebot.v4"

// Button is an inline callback button. Unique routes the press and Data travels with it.
type Button struct {
	Text   string
	Unique string
	Data   string
}

// Row lays buttons out side by side.
func Row(buttons ...Button) []Button { return buttons }

// Inline builds a markup with one keyboard row per argument. Empty rows are dropped.
func Inline(rows ...[]Button) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	inline := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tele.InlineButton, len(row))
		for i, b := range row {
			r[i] = *markup.Data(b.Text, b.Unique, b.Data).Inline()
		}
		inline = append(inline, r)
	}
	markup.InlineKeyboard = inline
	return markup
}

// Single is a keyboard holding one button.
func Single(b Button) *tele.ReplyMarkup {
	return Inline(Row(b))
}
