package handler

import (
	"github.com/prometheus/client_golang/prometheus"

	"chatclient/internal/app/chat"
	"chatclient/internal/app/session"
	"chatclient/internal/app/user"
	"chatclient/internal/configs"
)

// Session is the part of session.Manager the bridge drives.
type Session interface {
	Snapshot() session.State
	Changes() <-chan struct{}
	Done() <-chan struct{}
	Login(name string) (user.User, bool)
	Logout() bool
	SendMessage(text string) (chat.Message, bool)
	SetTyping(isTyping bool)
}

type AppDeps struct {
	Session Session
	Config  *configs.AppConfig

	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}
