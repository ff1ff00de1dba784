/*
Package user contains the identity record of a chat participant.

The same User struct is used in the roster pushed by the server, as the current
session identity, and as the record persisted across restarts.
*/
package user

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"chatclient/internal/pkg/randx"
)

// SystemID is the reserved sender id of server-generated messages.
const SystemID = "system"

// SystemUser is the pseudo participant that authors system messages.
var SystemUser = User{
	ID:     SystemID,
	Name:   "System",
	Online: true,
}

var namePolicy = bluemonday.StrictPolicy()

// User represents the identity information of a chat participant.
// Fields use JSON tags for transport payloads and the persisted record.
type User struct {
	// ID is the unique, opaque identifier of the user.
	ID string `json:"id"`

	// Name is the display name.
	Name string `json:"name"`

	// Avatar is the avatar URL, empty when unset.
	Avatar string `json:"avatar"`

	// Online reports whether the server considers the user connected.
	Online bool `json:"online"`
}

// New creates an online user with a fresh id. name must already be normalized.
func New(name string) User {
	return User{
		ID:     randx.UserID(),
		Name:   name,
		Avatar: "",
		Online: true,
	}
}

// NormalizeName trims raw and strips any markup from it. Length is left alone.
// An empty result means the name is not usable.
func NormalizeName(raw string) string {
	cleaned := namePolicy.Sanitize(strings.TrimSpace(raw))
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

// IsSystem reports whether the user is the reserved system sender.
func (u User) IsSystem() bool {
	return u.ID == SystemID
}
