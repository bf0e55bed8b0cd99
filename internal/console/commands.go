package console

import (
	"fmt"
	"strings"
)

// Admin console keywords.
const (
	CommandPlayers    = "players"
	CommandQuit       = "quit"
	CommandSave       = "save"
	CommandKick       = "kickuser"
	CommandBan        = "banuser"
	CommandTeleportTo = "teleportto"
	CommandMessage    = "servermsg"
)

// Default reasons used when the operator gives none.
const (
	DefaultKickReason = "Kicked by admin"
	DefaultBanReason  = "Banned by admin"
)

// Quote wraps s in double quotes for the server console. Embedded quotes
// are replaced with single quotes since the console has no escape syntax,
// and line breaks are flattened so one command stays one line.
func Quote(s string) string {
	s = strings.NewReplacer(`"`, `'`, "\r", " ", "\n", " ").Replace(s)
	return `"` + s + `"`
}

// Kick builds a kickuser command.
func Kick(player, reason string) string {
	if strings.TrimSpace(reason) == "" {
		reason = DefaultKickReason
	}
	return fmt.Sprintf("%s %s %s", CommandKick, Quote(player), Quote(reason))
}

// Ban builds a banuser command.
func Ban(player, reason string) string {
	if strings.TrimSpace(reason) == "" {
		reason = DefaultBanReason
	}
	return fmt.Sprintf("%s %s %s", CommandBan, Quote(player), Quote(reason))
}

// TeleportTo builds a teleportto command.
func TeleportTo(player string) string {
	return CommandTeleportTo + " " + Quote(player)
}

// Broadcast builds a servermsg command.
func Broadcast(message string) string {
	return CommandMessage + " " + Quote(message)
}
