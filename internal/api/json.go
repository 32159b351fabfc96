package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/bok/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps an error kind to an HTTP status and a client-facing message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, apperr.ErrParentNotFound):
		return http.StatusUnprocessableEntity, "parent not found"
	case errors.Is(err, apperr.ErrAmbiguous):
		return http.StatusConflict, err.Error()
	case errors.Is(err, apperr.ErrAlreadyExists):
		return http.StatusConflict, "node already exists"
	case errors.Is(err, apperr.ErrNetwork), errors.Is(err, apperr.ErrProtocol):
		return http.StatusBadGateway, "dissection provider failed"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// writeError writes err as a JSON error body. Server-side failures are logged.
func writeError(w http.ResponseWriter, op string, err error, attrs ...any) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error(op+" failed", append(attrs, slog.String("error", err.Error()))...)
	}
	writeJSON(w, status, errorBody(msg))
}
