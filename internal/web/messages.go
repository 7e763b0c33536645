package web

// messages.go maps technical errors to user-facing messages with support codes.
//
// # Error Codes Reference
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: the file exceeds the preview size limit
//	          Action: Upload a smaller sample or use the CLI for large files
//	FILE002 - Unrecognized format: neither the name nor the content identify the format
//	          Action: Use .csv, .json, .jsons or .jsonl, or start the content with [ or {
//	FILE003 - Malformed record: a row, line or element could not be parsed
//	          Action: Fix the record named in the error and try again
//	FILE004 - Undecodable content: no configured encoding could read the file
//	          Action: Save the file as UTF-8
//	FILE005 - No file: no file was attached to the request
//	          Action: Attach the file as the "file" form field
//	FILE006 - Invalid request: the form or one of its parameters is invalid
//	          Action: Check the request parameters
//
// # Remote API Errors (API001-API099)
//
//	API001 - Authentication failed: the document API rejected the credentials
//	         Action: Check API_USERNAME and API_PASSWORD or API_TOKEN
//	API002 - API error: the document API returned an error status
//	         Action: Check the database path and try again
//	API003 - API unreachable: the document API could not be reached
//	         Action: Check API_URL and your network or proxy settings
//
// # Preview Errors (PRV001-PRV099)
//
//	PRV001 - System busy: all preview slots are in use
//	         Action: Please wait a moment and try again
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// Typed errors are matched with errors.Is and errors.As; anything else falls
// back to case-insensitive substring patterns. The first match wins.

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/docstream/internal/client"
	"github.com/JonMunkholm/docstream/internal/stream"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errNoFile and errInvalidForm are the request errors the preview handler
// produces itself.
var (
	errNoFile      = errors.New("no file provided")
	errInvalidForm = errors.New("invalid form")
)

type errorPattern struct {
	match func(error) bool
	msg   UserMessage
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

func contains(pattern string) func(error) bool {
	return func(err error) bool { return strings.Contains(strings.ToLower(err.Error()), pattern) }
}

// apiStatus matches a *client.StatusError with one of codes, or any status
// when codes is empty.
func apiStatus(codes ...int) func(error) bool {
	return func(err error) bool {
		var se *client.StatusError
		if !errors.As(err, &se) {
			return false
		}
		if len(codes) == 0 {
			return true
		}
		for _, c := range codes {
			if se.StatusCode == c {
				return true
			}
		}
		return false
	}
}

func maxBytes(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

var errorPatterns = []errorPattern{
	// File errors
	{maxBytes, fileTooLarge},
	{is(stream.ErrTooLarge), fileTooLarge},
	{contains("request body too large"), fileTooLarge},
	{is(stream.ErrUnrecognizedFormat), UserMessage{
		Message: "The file format was not recognized",
		Action:  "Use .csv, .json, .jsons or .jsonl, or start the content with [ or {",
		Code:    "FILE002",
	}},
	{is(stream.ErrMalformedRecord), UserMessage{
		Message: "A record in the file could not be parsed",
		Action:  "Fix the record named in the error and try again",
		Code:    "FILE003",
	}},
	{is(stream.ErrUndecodableContent), UserMessage{
		Message: "The file's text encoding could not be read",
		Action:  "Save the file as UTF-8",
		Code:    "FILE004",
	}},
	{is(errNoFile), UserMessage{
		Message: "No file was attached",
		Action:  `Attach the file as the "file" form field`,
		Code:    "FILE005",
	}},
	{is(errInvalidForm), UserMessage{
		Message: "The request was not valid",
		Action:  "Check the request parameters",
		Code:    "FILE006",
	}},

	// Remote API errors
	{apiStatus(http.StatusUnauthorized, http.StatusForbidden), UserMessage{
		Message: "The document API rejected the credentials",
		Action:  "Check API_USERNAME and API_PASSWORD or API_TOKEN",
		Code:    "API001",
	}},
	{apiStatus(), UserMessage{
		Message: "The document API returned an error",
		Action:  "Check the database path and try again",
		Code:    "API002",
	}},
	{contains("connection refused"), apiUnreachable},
	{contains("no such host"), apiUnreachable},
	{contains("i/o timeout"), apiUnreachable},

	// Preview errors
	{is(ErrTooManyPreviews), UserMessage{
		Message: "System is busy processing other previews",
		Action:  "Please wait a moment and try again",
		Code:    "PRV001",
	}},
}

var fileTooLarge = UserMessage{
	Message: "File exceeds the maximum preview size",
	Action:  "Upload a smaller sample or use the CLI for large files",
	Code:    "FILE001",
}

var apiUnreachable = UserMessage{
	Message: "The document API could not be reached",
	Action:  "Check API_URL and your network or proxy settings",
	Code:    "API003",
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. A nil
// error maps to the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	for _, ep := range errorPatterns {
		if ep.match(err) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
