/*
Package handler provides HTTP handler functions that drive the chat session.

Each handler maps a presentation action onto the session manager. The session itself
ignores invalid input silently; these handlers report why an action had no effect
using the 2xxx business codes.
*/
package handler

import (
	"net/http"
	"strings"

	"chatclient/internal/pkg/errs"
	"chatclient/internal/pkg/req"
	"chatclient/internal/pkg/resp"
)

// MaxMessageBytes bounds the text accepted by POST /api/messages.
const MaxMessageBytes = 4000

type LoginInput struct {
	Name string `json:"name"`
}

type SendMessageInput struct {
	Text string `json:"text"`
}

type TypingInput struct {
	IsTyping bool `json:"isTyping"`
}

// sessionClosed reports whether the session manager has stopped.
func sessionClosed(s Session) bool {
	select {
	case <-s.Done():
		return true
	default:
		return false
	}
}

// HandleGetState returns the current session snapshot.
func HandleGetState(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, deps.Session.Snapshot())
	}
}

// HandleLogin creates a new identity and starts connecting.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input LoginInput

		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if sessionClosed(deps.Session) {
			resp.RespondError(w, r, errs.NewError(errs.ErrSessionClosed))
			return
		}

		u, ok := deps.Session.Login(input.Name)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidUsername))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"user": u})
	}
}

// HandleLogout disconnects and forgets the current identity.
func HandleLogout(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessionClosed(deps.Session) {
			resp.RespondError(w, r, errs.NewError(errs.ErrSessionClosed))
			return
		}

		if !deps.Session.Logout() {
			resp.RespondError(w, r, errs.NewError(errs.ErrNotLoggedIn))
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}

// HandleSendMessage appends and emits a message from the current user.
func HandleSendMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input SendMessageInput

		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if strings.TrimSpace(input.Text) == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrMessageEmpty))
			return
		}

		if len(input.Text) > MaxMessageBytes {
			resp.RespondError(w, r, errs.NewError(errs.ErrMessageContentTooLong, MaxMessageBytes))
			return
		}

		msg, ok := deps.Session.SendMessage(input.Text)
		if !ok {
			resp.RespondError(w, r, sendFailure(deps.Session))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"message": msg})
	}
}

// sendFailure explains why SendMessage was a no-op.
func sendFailure(s Session) *errs.CustomError {
	if sessionClosed(s) {
		return errs.NewError(errs.ErrSessionClosed)
	}
	if s.Snapshot().CurrentUser == nil {
		return errs.NewError(errs.ErrNotLoggedIn)
	}
	return errs.NewError(errs.ErrNotConnected)
}

// HandleSetTyping forwards local typing activity.
func HandleSetTyping(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input TypingInput

		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if sessionClosed(deps.Session) {
			resp.RespondError(w, r, errs.NewError(errs.ErrSessionClosed))
			return
		}

		if deps.Session.Snapshot().CurrentUser == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrNotLoggedIn))
			return
		}

		deps.Session.SetTyping(input.IsTyping)
		resp.RespondSuccess(w, r, nil)
	}
}
