package web

// messages.go maps technical errors to the messages API clients see.
//
// # Error Codes Reference
//
// Request errors (REQ):
//
//	REQ001 - Body is not JSON             "Invalid JSON in request body."
//	REQ002 - name query parameter missing "File name is required"
//	REQ003 - Client went away             "Request was cancelled"
//	REQ004 - name is a path, not a name   "File name is invalid"
//
// Validation errors (VAL):
//
//	VAL001 - Record fails validation      "Invalid parameters values."
//
// Product errors (PRD):
//
//	PRD001 - No product with that id      "Product not found"
//
// Storage errors (STO):
//
//	STO001 - Presign failed               "Error generating signed URL"
//
// Database errors (DB):
//
//	DB001 - Record already exists
//	DB004 - Connection refused
//	DB005 - Connection reset
//	DB006 - Timeout
//	DB007 - Deadlock
//
// Rate limiting (RATE):
//
//	RATE001 - Too many requests
//
// Anything else is ERR000 "Internal Server Error"; the technical error is in
// the server log under the same request_id.
//
// Typed errors are checked first with errors.Is / errors.As. Remaining errors
// are matched case-insensitively against errorPatterns; the first match wins.

import (
	"context"
	"errors"
	"strings"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
	"github.com/JonMunkholm/catalogimport/internal/storage/postgres"
)

var (
	errMissingName   = errors.New("file name is required")
	errInvalidName   = errors.New("file name must not contain a path")
	errPresignFailed = errors.New("presign failed")
	errRateLimited   = errors.New("rate limit exceeded")
)

// UserMessage is what a client is told about an error.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Reference for support
}

var (
	msgMalformedJSON = UserMessage{
		Message: "Invalid JSON in request body.",
		Action:  "Send a single JSON object",
		Code:    "REQ001",
	}
	msgMissingName = UserMessage{
		Message: "File name is required",
		Action:  "Pass the file name as ?name=",
		Code:    "REQ002",
	}
	msgInvalidName = UserMessage{
		Message: "File name is invalid",
		Action:  "Pass a bare file name without '/'",
		Code:    "REQ004",
	}
	msgCanceled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "REQ003",
	}
	msgInvalidRecord = UserMessage{
		Message: "Invalid parameters values.",
		Action:  "title must be non-empty, price greater than 0 and count 0 or greater",
		Code:    "VAL001",
	}
	msgProductNotFound = UserMessage{
		Message: "Product not found",
		Code:    "PRD001",
	}
	msgPresignFailed = UserMessage{
		Message: "Error generating signed URL",
		Action:  "Please try again in a few moments",
		Code:    "STO001",
	}
	msgDuplicate = UserMessage{
		Message: "A record with this ID already exists",
		Action:  "Retry the request; a new id is assigned each time",
		Code:    "DB001",
	}
	msgRateLimited = UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}
)

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{"duplicate key", msgDuplicate},
	{"connection refused", UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB004",
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB005",
	}},
	{"timeout", UserMessage{
		Message: "Operation timed out",
		Action:  "Please try again later",
		Code:    "DB006",
	}},
	{"deadlock", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007",
	}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "Internal Server Error",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-facing message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	switch {
	case errors.Is(err, catalog.ErrMalformedJSON):
		return msgMalformedJSON
	case catalog.IsValidationError(err):
		return msgInvalidRecord
	case errors.Is(err, errMissingName):
		return msgMissingName
	case errors.Is(err, errInvalidName):
		return msgInvalidName
	case errors.Is(err, postgres.ErrNotFound):
		return msgProductNotFound
	case errors.Is(err, postgres.ErrDuplicate):
		return msgDuplicate
	case errors.Is(err, errPresignFailed):
		return msgPresignFailed
	case errors.Is(err, errRateLimited):
		return msgRateLimited
	case errors.Is(err, context.Canceled):
		return msgCanceled
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}
