package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "wrapped source write maps by sentinel",
			err:         fmt.Errorf("%w: write %q: %w", ErrSourceWrite, "Draft", errors.New("googleapi: 500")),
			wantCode:    "SYNC002",
			wantMessage: "The spreadsheet could not be updated",
		},
		{
			name:        "audit write",
			err:         fmt.Errorf("%w: boom", ErrAuditWrite),
			wantCode:    "SYNC003",
			wantMessage: "Changes were saved but the audit log could not be updated",
		},
		{
			name:        "dataset busy",
			err:         fmt.Errorf("lock %q: %w", "Draft", ErrDatasetBusy),
			wantCode:    "SYNC004",
			wantMessage: "This dataset is already being synced",
		},
		{
			name:        "source write wins over a timeout cause",
			err:         fmt.Errorf("%w: %w", ErrSourceWrite, context.DeadlineExceeded),
			wantCode:    "SYNC002",
			wantMessage: "The spreadsheet could not be updated",
		},
		{
			name:        "bare deadline maps to timeout",
			err:         context.DeadlineExceeded,
			wantCode:    "STORE002",
			wantMessage: "Operation timed out",
		},
		{
			name:        "connection refused maps by pattern",
			err:         errors.New("dial tcp 127.0.0.1:5432: connection refused"),
			wantCode:    "STORE001",
			wantMessage: "Unable to connect to the store",
		},
		{
			name:        "file too large",
			err:         errors.New("file too large: 200MB exceeds limit"),
			wantCode:    "FILE001",
			wantMessage: "File exceeds maximum size limit",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("QUOTA exceeded for quota metric"),
			wantCode:    "STORE004",
			wantMessage: "The store's request quota was exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrDatasetBusy)

	expected := "This dataset is already being synced (Code: SYNC004). Wait for the running sync to finish and try again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", ErrUnknownDataset, true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := fmt.Errorf("%w: Draft", ErrUnknownDataset)
		userErr := NewUserError(techErr)

		if userErr.Error() != "The dataset is not configured" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if !errors.Is(userErr, ErrUnknownDataset) {
			t.Error("Unwrap() should expose the sentinel")
		}
	})
}
