package core

// error_messages.go maps technical errors to user-facing messages with codes
// for support reference.
//
// # Sync Errors (SYNC001-SYNC099)
//
//	SYNC001 - Remote read failed; the snapshot baseline was used
//	SYNC002 - Remote write failed; the snapshot was still updated
//	SYNC003 - Audit append failed; data was written
//	SYNC004 - Another sync of this dataset is running
//	SYNC005 - Unknown dataset
//	SYNC006 - Key column missing; the first column was used
//	SYNC007 - Snapshot unreadable
//	SYNC008 - Snapshots disabled
//	SYNC009 - No snapshot saved yet
//	SYNC010 - Dataset name collides with the audit dataset
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Invalid CSV
//	FILE003 - Unsupported file type
//	FILE004 - No file provided
//	FILE005 - Empty file
//	FILE006 - Invalid spreadsheet
//
// # Store Errors (STORE001-STORE099)
//
//	STORE001 - Connection refused
//	STORE002 - Operation timed out
//	STORE003 - Permission denied by the store
//	STORE004 - Quota exceeded
//
// # Request Errors
//
//	REQ001 - Request cancelled
//	RATE001 - Rate limited
//
// # Default Error (ERR000)
//
// Sentinel errors are matched first with errors.Is; everything else is
// matched case-insensitively on the error text. The first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage represents a user-friendly error message with action guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

var sentinelMessages = []sentinelMessage{
	{ErrSourceWrite, UserMessage{
		Message: "The spreadsheet could not be updated",
		Action:  "The local snapshot was saved; run the sync again",
		Code:    "SYNC002",
	}},
	{ErrAuditWrite, UserMessage{
		Message: "Changes were saved but the audit log could not be updated",
		Action:  "Check the audit dataset permissions",
		Code:    "SYNC003",
	}},
	{ErrDatasetBusy, UserMessage{
		Message: "This dataset is already being synced",
		Action:  "Wait for the running sync to finish and try again",
		Code:    "SYNC004",
	}},
	{ErrUnknownDataset, UserMessage{
		Message: "The dataset is not configured",
		Action:  "Check the dataset name against /api/datasets",
		Code:    "SYNC005",
	}},
	{ErrAuditDatasetName, UserMessage{
		Message: "This dataset name is reserved for the audit log",
		Action:  "Rename the dataset or change SYNC_AUDIT_DATASET",
		Code:    "SYNC010",
	}},
	{ErrSourceRead, UserMessage{
		Message: "The spreadsheet could not be read; the local snapshot was used",
		Action:  "No action needed unless this repeats",
		Code:    "SYNC001",
	}},
	{ErrKeyColumnMissing, UserMessage{
		Message: "The key column was not found; the first column was used as the key",
		Action:  "Check the export's header row or the dataset's key column",
		Code:    "SYNC006",
	}},
	{ErrSnapshotCorrupt, UserMessage{
		Message: "The local snapshot could not be read",
		Action:  "It will be rewritten by the next successful sync",
		Code:    "SYNC007",
	}},
	{context.Canceled, UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "REQ001",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "Operation timed out",
		Action:  "Try again later or increase the sync timeouts",
		Code:    "STORE002",
	}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{"file too large", UserMessage{
		Message: "File exceeds maximum size limit",
		Action:  "Split the export into smaller files",
		Code:    "FILE001",
	}},
	{"invalid csv", UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Ensure the file is comma-separated with consistent columns",
		Code:    "FILE002",
	}},
	{"unsupported file type", UserMessage{
		Message: "File type is not supported",
		Action:  "Upload a .csv or .xlsx export",
		Code:    "FILE003",
	}},
	{"no file provided", UserMessage{
		Message: "No file was selected",
		Action:  "Attach the exported file as the \"file\" form field",
		Code:    "FILE004",
	}},
	{"empty file", UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Export the dataset again and upload a file with a header row",
		Code:    "FILE005",
	}},
	{"invalid xlsx", UserMessage{
		Message: "The spreadsheet file could not be opened",
		Action:  "Re-export the file or save it as CSV",
		Code:    "FILE006",
	}},
	{"snapshots are disabled", UserMessage{
		Message: "Snapshots are disabled on this server",
		Action:  "Unset SNAPSHOT_DISABLED to keep local snapshots",
		Code:    "SYNC008",
	}},
	{"no snapshot", UserMessage{
		Message: "No snapshot has been saved for this dataset yet",
		Action:  "Run a sync first",
		Code:    "SYNC009",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to the store",
		Action:  "Please try again in a few moments",
		Code:    "STORE001",
	}},
	{"timeout", UserMessage{
		Message: "Operation timed out",
		Action:  "Try again later or increase the sync timeouts",
		Code:    "STORE002",
	}},
	{"permission", UserMessage{
		Message: "The store denied access",
		Action:  "Check the service account has edit access",
		Code:    "STORE003",
	}},
	{"quota", UserMessage{
		Message: "The store's request quota was exceeded",
		Action:  "Wait a minute before syncing again",
		Code:    "STORE004",
	}},
	{"rate limit", UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Returns an empty UserMessage for nil.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
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

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
