package format

import (
	"html"
	"strconv"
	"strings"
)

// EscapeHTML escapes text for Telegram's HTML parse mode.
func EscapeHTML(text string) string {
	return html.EscapeString(text)
}

// FullName joins first and last name the way Telegram clients display them.
func FullName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

// MentionHTML renders a tg://user link that notifies the user even without a username.
// An empty name falls back to the numeric id.
func MentionHTML(userID int64, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = strconv.FormatInt(userID, 10)
	}
	return `<a href="tg://user?id=` + strconv.FormatInt(userID, 10) + `">` + EscapeHTML(name) + `</a>`
}

// Bold wraps escaped text in <b>.
func Bold(text string) string {
	return "<b>" + EscapeHTML(text) + "</b>"
}
