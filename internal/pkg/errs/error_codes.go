/*
Package errs provides custom error types and application-level error code constants.

These error codes identify rejected presentation requests and system failures
when the presentation bridge talks to a browser UI.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRequestEntityTooLarge indicates that the request body size exceeded the limit.
	ErrRequestEntityTooLarge = 1006

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Session Errors
const (
	// ErrInvalidUsername indicates that the login name was empty after trimming and sanitizing.
	ErrInvalidUsername = 2001

	// ErrNotLoggedIn indicates an operation that needs a current user was requested without one.
	ErrNotLoggedIn = 2002

	// ErrMessageEmpty indicates that the message text was empty after trimming.
	ErrMessageEmpty = 2101

	// ErrNotConnected indicates the message was dropped because the transport is not connected.
	ErrNotConnected = 2102

	// ErrMessageContentTooLong indicates that the message text exceeded the maximum length limit.
	ErrMessageContentTooLong = 2103
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general internal error.
	ErrUnknown = 5000

	// ErrSessionClosed indicates that the session manager has already been disposed.
	ErrSessionClosed = 5001
)
