package session

import (
	"fmt"
	"slices"

	"chatclient/internal/app/chat"
	"chatclient/internal/app/user"
)

// Status is the connection status of a session.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText encodes the status by name so presentation clients see "connected" rather than 2.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "disconnected":
		*s = Disconnected
	case "connecting":
		*s = Connecting
	case "connected":
		*s = Connected
	default:
		return fmt.Errorf("unknown connection status %q", b)
	}
	return nil
}

// State is a read-only copy of the session state handed to the presentation layer.
type State struct {
	Messages         []chat.Message `json:"messages"`
	Users            []user.User    `json:"users"`
	CurrentUser      *user.User     `json:"currentUser"`
	ConnectionStatus Status         `json:"connectionStatus"`
	TypingUserIDs    []string       `json:"typingUserIds"`

	// LastError describes the most recent connection failure. It is cleared on connect.
	LastError string `json:"lastError,omitempty"`
}

// IsTyping reports whether userID is in the typing set.
func (s State) IsTyping(userID string) bool {
	return slices.Contains(s.TypingUserIDs, userID)
}

// LookupUser finds a roster entry by id.
func (s State) LookupUser(id string) (user.User, bool) {
	for _, u := range s.Users {
		if u.ID == id {
			return u, true
		}
	}
	return user.User{}, false
}

// sessionState is the mutable state owned by the manager loop.
type sessionState struct {
	messages    []chat.Message
	messageIDs  map[string]struct{}
	users       []user.User
	currentUser *user.User
	status      Status
	typingIDs   map[string]struct{}
	lastError   string
}

func newSessionState() sessionState {
	return sessionState{
		messageIDs: make(map[string]struct{}),
		typingIDs:  make(map[string]struct{}),
	}
}

// appendMessage adds msg to the log. It reports false when a message with the same id is already present.
func (s *sessionState) appendMessage(msg chat.Message) bool {
	if msg.ID != "" {
		if _, dup := s.messageIDs[msg.ID]; dup {
			return false
		}
		s.messageIDs[msg.ID] = struct{}{}
	}
	s.messages = append(s.messages, msg)
	return true
}

// lastTimestamp returns the timestamp of the newest log entry, or 0.
func (s *sessionState) lastTimestamp() int64 {
	if n := len(s.messages); n > 0 {
		return s.messages[n-1].Timestamp
	}
	return 0
}

// replaceRoster installs a full snapshot, keeping the first entry for any repeated id.
func (s *sessionState) replaceRoster(users []user.User) {
	seen := make(map[string]struct{}, len(users))
	roster := make([]user.User, 0, len(users))

	for _, u := range users {
		if _, dup := seen[u.ID]; dup {
			continue
		}
		seen[u.ID] = struct{}{}
		roster = append(roster, u)
	}

	s.users = roster
}

// upsertUser replaces the entry with u.ID or appends u.
func (s *sessionState) upsertUser(u user.User) {
	for i := range s.users {
		if s.users[i].ID == u.ID {
			s.users[i] = u
			return
		}
	}
	s.users = append(s.users, u)
}

func (s *sessionState) removeUser(id string) {
	s.users = slices.DeleteFunc(s.users, func(u user.User) bool { return u.ID == id })
}

func (s *sessionState) setTyping(userID string, typing bool) {
	if typing {
		s.typingIDs[userID] = struct{}{}
		return
	}
	delete(s.typingIDs, userID)
}

// snapshot deep-copies the state. Typing ids are sorted for stable output.
func (s *sessionState) snapshot() State {
	st := State{
		Messages:         slices.Clone(s.messages),
		Users:            slices.Clone(s.users),
		ConnectionStatus: s.status,
		TypingUserIDs:    make([]string, 0, len(s.typingIDs)),
		LastError:        s.lastError,
	}

	if st.Messages == nil {
		st.Messages = []chat.Message{}
	}
	if st.Users == nil {
		st.Users = []user.User{}
	}

	if s.currentUser != nil {
		cu := *s.currentUser
		st.CurrentUser = &cu
	}

	for id := range s.typingIDs {
		st.TypingUserIDs = append(st.TypingUserIDs, id)
	}
	slices.Sort(st.TypingUserIDs)

	return st
}
