/*
Package chat defines the data exchanged between the session manager and the transport.

This file defines the Message record, the transport Event kinds and the JSON frame
format used on the wire: {"type": "<kind>", "payload": <kind specific>}.
*/
package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"chatclient/internal/app/user"
	"chatclient/internal/pkg/randx"
)

// Message is a single chat message. Messages are immutable once created.
type Message struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	SenderID  string `json:"senderId"`
	Timestamp int64  `json:"timestamp"`
	Read      bool   `json:"read"`
}

// NewMessage builds an unread message from senderID stamped with now (unix milliseconds).
func NewMessage(senderID, text string, now time.Time) Message {
	return Message{
		ID:        randx.MessageID(),
		Text:      text,
		SenderID:  senderID,
		Timestamp: now.UnixMilli(),
		Read:      false,
	}
}

// EventType names a transport event.
type EventType string

const (
	// EventConnect is pushed when the connection is established.
	EventConnect EventType = "connect"

	// EventDisconnect is pushed when the connection is lost.
	EventDisconnect EventType = "disconnect"

	// EventMessage carries a Message in either direction.
	EventMessage EventType = "message"

	// EventUsers carries the full roster snapshot.
	EventUsers EventType = "users"

	// EventTyping carries a typing state change in either direction.
	EventTyping EventType = "typing"
)

// TypingPayload is the payload of EventTyping.
type TypingPayload struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// Event is one transport event. Only the field matching Type is meaningful.
type Event struct {
	Type    EventType
	Message Message
	Users   []user.User
	Typing  TypingPayload

	// Err records why a connection ended. It never travels on the wire.
	Err error
}

// ConnectEvent returns a connect event.
func ConnectEvent() Event { return Event{Type: EventConnect} }

// DisconnectEvent returns a disconnect event caused by err (may be nil).
func DisconnectEvent(err error) Event { return Event{Type: EventDisconnect, Err: err} }

// MessageEvent wraps m in a message event.
func MessageEvent(m Message) Event { return Event{Type: EventMessage, Message: m} }

// UsersEvent wraps a roster snapshot in a users event.
func UsersEvent(users []user.User) Event { return Event{Type: EventUsers, Users: users} }

// TypingEvent builds a typing event for userID.
func TypingEvent(userID string, isTyping bool) Event {
	return Event{Type: EventTyping, Typing: TypingPayload{UserID: userID, IsTyping: isTyping}}
}

// frame is the wire representation of an Event.
type frame struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode serializes ev into a wire frame.
func Encode(ev Event) ([]byte, error) {
	var payload any

	switch ev.Type {
	case EventConnect, EventDisconnect:
	case EventMessage:
		payload = ev.Message
	case EventUsers:
		users := ev.Users
		if users == nil {
			users = []user.User{}
		}
		payload = users
	case EventTyping:
		payload = ev.Typing
	default:
		return nil, fmt.Errorf("encode event: unsupported type %q", ev.Type)
	}

	f := frame{Type: ev.Type}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", ev.Type, err)
		}
		f.Payload = raw
	}

	return json.Marshal(f)
}

// Decode parses a wire frame. Payload contents are not validated beyond their JSON shape.
func Decode(data []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Event{}, fmt.Errorf("decode frame: %w", err)
	}

	ev := Event{Type: f.Type}

	var target any
	switch f.Type {
	case EventConnect, EventDisconnect:
		return ev, nil
	case EventMessage:
		target = &ev.Message
	case EventUsers:
		target = &ev.Users
	case EventTyping:
		target = &ev.Typing
	default:
		return Event{}, fmt.Errorf("decode frame: unsupported type %q", f.Type)
	}

	if len(f.Payload) == 0 {
		return Event{}, fmt.Errorf("decode frame: %s without payload", f.Type)
	}

	if err := json.Unmarshal(f.Payload, target); err != nil {
		return Event{}, fmt.Errorf("decode %s payload: %w", f.Type, err)
	}

	return ev, nil
}
