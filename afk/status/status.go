// Package status defines the AFK status record shared by storage, cache and service.
package status

import (
	"fmt"
	"strings"
	"time"
)

// Key identifies one user in one chat.
type Key struct {
	ChatID int64
	UserID int64
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d", k.ChatID, k.UserID)
}

// Less orders keys by chat then user; used for keyset pagination.
func (k Key) Less(o Key) bool {
	if k.ChatID != o.ChatID {
		return k.ChatID < o.ChatID
	}
	return k.UserID < o.UserID
}

// Identity is what the bot knows about a user from an update.
type Identity struct {
	Key
	Username    string
	DisplayName string
}

// NormalizeUsername strips a leading @ and lower-cases the name.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
}

// Status is the persisted AFK state of a user in a chat.
type Status struct {
	Key
	Username        string
	DisplayName     string
	Away            bool
	Reason          string
	Since           time.Time
	LastSeen        time.Time
	LastAnnouncedAt time.Time
}

// Identity returns the identity fields of s.
func (s Status) Identity() Identity {
	return Identity{Key: s.Key, Username: s.Username, DisplayName: s.DisplayName}
}

// AwayFor reports how long the user has been away at now; zero when not away.
func (s Status) AwayFor(now time.Time) time.Duration {
	if !s.Away || s.Since.IsZero() || now.Before(s.Since) {
		return 0
	}
	return now.Sub(s.Since)
}

// Touch is one observed activity of a user in a chat.
type Touch struct {
	Identity
	At time.Time
}
