package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with its technical detail and the request ID, and
// returned to the client as the user-facing message from core.MapError.

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/TabSync/internal/batch"
	"github.com/JonMunkholm/TabSync/internal/core"
	"github.com/JonMunkholm/TabSync/internal/logging"
)

var (
	errRateLimited = errors.New("rate limit exceeded")
	errNoFile      = errors.New("no file provided")
	errNoSnapshots = errors.New("snapshots are disabled")
	errNoSnapshot  = errors.New("no snapshot for dataset")
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes its user-facing form with statusCode.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", msg.Code,
	}
	if statusCode >= http.StatusInternalServerError {
		logger.Error("request error", args...)
	} else {
		logger.Warn("request error", args...)
	}

	writeJSON(w, statusCode, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// statusFor picks the HTTP status for a sync or store error.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, core.ErrUnknownDataset), errors.Is(err, errNoSnapshot), errors.Is(err, errNoSnapshots):
		return http.StatusNotFound
	case errors.Is(err, core.ErrDatasetBusy):
		return http.StatusConflict
	case errors.Is(err, batch.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, batch.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, batch.ErrInvalidCSV), errors.Is(err, batch.ErrInvalidXLSX),
		errors.Is(err, batch.ErrEmptyFile), errors.Is(err, errNoFile):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrSourceWrite), errors.Is(err, core.ErrSourceRead):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
