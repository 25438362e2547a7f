// Package commands describes slash commands registered with the bot.
package commands

import (
	"slices"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Command is a slash command with its handler and menu metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly restricts the command to the configured admin id.
	AdminOnly bool
	// Hidden keeps the command out of the Telegram menu.
	Hidden  bool
	Aliases []string
}

// Listed reports whether the command belongs in the public menu.
func (c Command) Listed() bool {
	return !c.Hidden && !c.AdminOnly
}

// HasAlias reports whether name, with or without the leading slash, is one
// of the command's aliases.
func (c Command) HasAlias(name string) bool {
	name = strings.TrimPrefix(name, "/")
	return slices.ContainsFunc(c.Aliases, func(a string) bool {
		return strings.TrimPrefix(a, "/") == name
	})
}
