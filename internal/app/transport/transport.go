/*
Package transport defines the bidirectional event channel between the session manager
and a chat server, together with its implementations.
*/
package transport

import (
	"context"
	"errors"

	"chatclient/internal/app/chat"
)

// ErrClosed is returned by Emit once the connection has been closed.
var ErrClosed = errors.New("transport: connection closed")

// ErrSendQueueFull is returned by Emit when the outbound queue cannot take more frames.
var ErrSendQueueFull = errors.New("transport: send queue full")

// Transport establishes connections scoped to one identity.
type Transport interface {
	// Dial connects as (userID, userName). The returned Conn delivers an
	// EventConnect first and an EventDisconnect when the link is lost.
	Dial(ctx context.Context, userID, userName string) (Conn, error)
}

// Conn is one live connection.
type Conn interface {
	// Events yields server pushes in delivery order. It is closed when the connection ends.
	Events() <-chan chat.Event

	// Emit queues ev for sending to the server.
	Emit(ev chat.Event) error

	// Close tears the connection down. It is safe to call more than once.
	Close() error
}
