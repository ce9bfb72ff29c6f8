/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system errors both internally
within the server and in responses to clients.
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

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1005
)

// 2xxx: Account and Authentication Errors
const (
	// ErrInvalidUsername indicates that the supplied username failed validation.
	ErrInvalidUsername = 2001

	// ErrInvalidEmail indicates that the supplied email address failed validation.
	ErrInvalidEmail = 2002

	// ErrInvalidPassword indicates that the supplied password failed validation.
	ErrInvalidPassword = 2003

	// ErrUserAlreadyExists indicates that the username or email is already registered.
	ErrUserAlreadyExists = 2004

	// ErrInvalidCredentials indicates a failed login attempt.
	ErrInvalidCredentials = 2005

	// ErrUserNotFound indicates that the requested user account does not exist.
	ErrUserNotFound = 2006

	// ErrUnauthorized indicates a request that requires a signed-in user.
	ErrUnauthorized = 2007
)

// 3xxx: Messaging and Upload Errors
const (
	// ErrMessageContentTooLong indicates that message content exceeded the maximum length limit.
	ErrMessageContentTooLong = 3001

	// ErrFileSizeTooLarge indicates that an upload exceeded the size limit.
	ErrFileSizeTooLarge = 3002

	// ErrFileTypeInvalid indicates an upload with a disallowed file type.
	ErrFileTypeInvalid = 3003

	// ErrFileStorageFailed indicates a failure while talking to object storage.
	ErrFileStorageFailed = 3004

	// ErrSessionReplaced indicates that the websocket session was closed because
	// the same account signed in from another connection.
	ErrSessionReplaced = 3005
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
