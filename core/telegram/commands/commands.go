// Package commands defines the metadata the registry keeps per slash command.
package commands

import tele "gopkg.in/telebot.v4"

// Command is a slash command handler with its menu metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly wraps Handler with the admin check.
	AdminOnly bool
	// Hidden keeps the command out of the Telegram menu.
	Hidden  bool
	Aliases []string
}

// Visible reports whether the command belongs in the public menu.
func (c Command) Visible() bool {
	return !c.Hidden && !c.AdminOnly
}
