/*
Package randx generates the opaque identifiers used by the chat client.

User and message ids are random UUID v4 strings so that ids minted by independent
clients never collide and can be used for idempotent de-duplication.
*/
package randx

import "github.com/google/uuid"

// UserID generates a fresh identifier for a newly logged-in user.
func UserID() string {
	return uuid.NewString()
}

// MessageID generates a UUID v4 string that uniquely identifies a message.
func MessageID() string {
	return uuid.NewString()
}

// IsValidID reports whether id is a well-formed UUID.
func IsValidID(id string) bool {
	return uuid.Validate(id) == nil
}
