/*
Package errs provides custom error types and application-level error code constants.

This file maps error codes to CustomError templates used by the presentation bridge.
*/
package errs

import "net/http"

// errorMap stores the CustomError template for every application error code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:         {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType:  {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:     {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:    {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRequestEntityTooLarge: {Code: ErrRequestEntityTooLarge, Message: "Request size is too large.", Status: http.StatusRequestEntityTooLarge},
	ErrRateLimitExceeded:     {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Session Errors
	ErrInvalidUsername:       {Code: ErrInvalidUsername, Message: "Please enter a name."},
	ErrNotLoggedIn:           {Code: ErrNotLoggedIn, Message: "Please sign in to continue."},
	ErrMessageEmpty:          {Code: ErrMessageEmpty, Message: "Message is empty."},
	ErrNotConnected:          {Code: ErrNotConnected, Message: "Not connected. Message was not sent."},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long (max %d bytes)."},

	// 5xxx: Internal System Errors
	ErrUnknown:       {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrSessionClosed: {Code: ErrSessionClosed, Message: "Chat session has ended.", Status: http.StatusServiceUnavailable},
}
