/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1005
)

// 21xx: Not-Found Errors
const (
	// ErrChannelNotFound indicates that the referenced channel does not exist.
	ErrChannelNotFound = 2101

	// ErrUserNotFound indicates that the referenced user account does not exist.
	ErrUserNotFound = 2102
)

// 22xx: Validation Errors
const (
	// ErrChannelNameInvalid indicates the channel name violates the 3-50 character constraint.
	ErrChannelNameInvalid = 2201

	// ErrMessageEmpty indicates the message content is empty after trimming whitespace.
	ErrMessageEmpty = 2202

	// ErrMessageTooLong indicates the message content exceeded the maximum length limit.
	ErrMessageTooLong = 2203

	// ErrUsernameInvalid indicates the username violates the 3-20 character constraint.
	ErrUsernameInvalid = 2204

	// ErrPasswordInvalid indicates the password violates the length constraints.
	ErrPasswordInvalid = 2205

	// ErrCreatorCannotLeave indicates the channel creator attempted a durable leave
	// instead of deleting the channel. Ownership never transfers.
	ErrCreatorCannotLeave = 2206

	// ErrFileSizeInvalid indicates an avatar file size outside the accepted range.
	ErrFileSizeInvalid = 2207

	// ErrFileTypeInvalid indicates an avatar file name or MIME type that is not allowed.
	ErrFileTypeInvalid = 2208
)

// 23xx: Conflict Errors
const (
	// ErrUsernameTaken indicates the username is already registered.
	ErrUsernameTaken = 2301
)

// 31xx: Authentication Errors
const (
	// ErrUnauthorized indicates a missing, invalid, or expired token.
	ErrUnauthorized = 3101

	// ErrInvalidCredentials indicates the username/password pair did not verify.
	ErrInvalidCredentials = 3102

	// ErrAlreadyAuthenticated indicates an authenticate event on an already-bound connection
	// naming a different user, or a login attempt from a signed-in session.
	ErrAlreadyAuthenticated = 3103
)

// 32xx: Authorization Errors
const (
	// ErrNotChannelMember indicates the acting user is not a member of the channel.
	ErrNotChannelMember = 3201

	// ErrNotChannelCreator indicates a privileged action (kick, delete) from a non-creator.
	ErrNotChannelCreator = 3202

	// ErrNotSubscribed indicates a channel-scoped event from a connection that has not
	// joined the channel's live room.
	ErrNotSubscribed = 3203
)

// 41xx: Dependency Errors
const (
	// ErrDependencyUnavailable indicates the persistence or auth collaborator was
	// unreachable or timed out. The operation aborted with no partial state change.
	ErrDependencyUnavailable = 4101

	// ErrFileStorageFailed indicates the object storage collaborator rejected a presign request.
	ErrFileStorageFailed = 4102
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
