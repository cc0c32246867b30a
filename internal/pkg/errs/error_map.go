/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 21xx: Not-Found Errors
	ErrChannelNotFound: {Code: ErrChannelNotFound, Message: "Channel not found.", Status: http.StatusNotFound},
	ErrUserNotFound:    {Code: ErrUserNotFound, Message: "Account not found.", Status: http.StatusNotFound},

	// 22xx: Validation Errors
	ErrChannelNameInvalid: {Code: ErrChannelNameInvalid, Message: "Channel name must be between 3 and 50 characters.", Status: http.StatusBadRequest},
	ErrMessageEmpty:       {Code: ErrMessageEmpty, Message: "Message cannot be empty.", Status: http.StatusBadRequest},
	ErrMessageTooLong:     {Code: ErrMessageTooLong, Message: "Message is too long.", Status: http.StatusBadRequest},
	ErrUsernameInvalid:    {Code: ErrUsernameInvalid, Message: "Username must be between 3 and 20 characters.", Status: http.StatusBadRequest},
	ErrPasswordInvalid:    {Code: ErrPasswordInvalid, Message: "Invalid password.", Status: http.StatusBadRequest},
	ErrCreatorCannotLeave: {Code: ErrCreatorCannotLeave, Message: "The channel creator cannot leave. Delete the channel instead.", Status: http.StatusBadRequest},
	ErrFileSizeInvalid:    {Code: ErrFileSizeInvalid, Message: "File is too large.", Status: http.StatusBadRequest},
	ErrFileTypeInvalid:    {Code: ErrFileTypeInvalid, Message: "File type is not allowed.", Status: http.StatusBadRequest},

	// 23xx: Conflict Errors
	ErrUsernameTaken: {Code: ErrUsernameTaken, Message: "Username is already taken.", Status: http.StatusConflict},

	// 31xx: Authentication Errors
	ErrUnauthorized:         {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrInvalidCredentials:   {Code: ErrInvalidCredentials, Message: "Incorrect username or password.", Status: http.StatusUnauthorized},
	ErrAlreadyAuthenticated: {Code: ErrAlreadyAuthenticated, Message: "You are already signed in.", Status: http.StatusBadRequest},

	// 32xx: Authorization Errors
	ErrNotChannelMember:  {Code: ErrNotChannelMember, Message: "You are not a member of this channel.", Status: http.StatusForbidden},
	ErrNotChannelCreator: {Code: ErrNotChannelCreator, Message: "Only the channel creator can do that.", Status: http.StatusForbidden},
	ErrNotSubscribed:     {Code: ErrNotSubscribed, Message: "Join the channel before sending events to it.", Status: http.StatusForbidden},

	// 41xx: Dependency Errors
	ErrDependencyUnavailable: {Code: ErrDependencyUnavailable, Message: "Service is temporarily unavailable. Please retry.", Status: http.StatusServiceUnavailable},
	ErrFileStorageFailed:     {Code: ErrFileStorageFailed, Message: "File upload failed. Please try again.", Status: http.StatusBadGateway},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
