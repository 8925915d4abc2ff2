package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fs9fs/fs9/internal/logger"
	"github.com/fs9fs/fs9/pkg/metaclient"
	"github.com/fs9fs/fs9/pkg/provider"
)

// response is this package's own copy of the standard envelope, kept
// local (rather than imported from the router package) the way the
// teacher's pkg/api/handlers keeps its own writeJSON instead of
// depending on pkg/api and risking an import cycle.
type response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := response{Status: "ok", Timestamp: time.Now().UTC(), Data: data}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, `{"status":"error","error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

func writeEmpty(w http.ResponseWriter, status int) {
	writeJSON(w, status, struct{}{})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := response{Status: "error", Timestamp: time.Now().UTC(), Error: message}
	json.NewEncoder(w).Encode(resp) //nolint:errcheck
}

// statusForKind maps a provider error Kind to the HTTP status spec.md §7
// assigns it.
func statusForKind(kind provider.Kind) int {
	switch kind {
	case provider.KindNotFound:
		return http.StatusNotFound
	case provider.KindAlreadyExists:
		return http.StatusConflict
	case provider.KindPermissionDenied:
		return http.StatusForbidden
	case provider.KindIsDirectory, provider.KindNotDirectory, provider.KindDirectoryNotEmpty,
		provider.KindInvalidHandle, provider.KindInvalidInput:
		return http.StatusBadRequest
	case provider.KindNotImplemented:
		return http.StatusNotImplemented
	case provider.KindTooManyHops:
		return 508
	default:
		return http.StatusInternalServerError
	}
}

// writeOperationError translates err into the HTTP response spec.md §7
// requires.
func writeOperationError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, metaclient.ErrCircuitOpen) {
		writeError(w, http.StatusServiceUnavailable, "metadata service unavailable: circuit open")
		return
	}

	var pe *provider.Error
	if errors.As(err, &pe) {
		status := statusForKind(pe.Kind)
		if status >= http.StatusInternalServerError {
			logger.Error("operation failed", logger.ErrorCode(pe.Kind.String()), logger.Err(err))
		}
		writeError(w, status, err.Error())
		return
	}

	logger.Error("unexpected operation error", logger.Err(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
