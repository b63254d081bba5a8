// Package respond writes JSON bodies and maps service errors to HTTP statuses.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"oauthsrv/internal/app/interceptors"
	"oauthsrv/internal/config"
	"oauthsrv/internal/domain/protocol"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes an error body with the given kind.
func WriteError(w http.ResponseWriter, status int, kind string, message string) {
	if err := JSON(w, status, ErrorResponse{Error: kind, Message: message}); err != nil {
		http.Error(w, kind+": "+message, status)
	}
}

type mapping struct {
	err    error
	status int
	kind   string
}

var mappings = []mapping{
	{protocol.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{protocol.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
	{protocol.ErrUserNotFound, http.StatusUnauthorized, "user_not_found"},
	{protocol.ErrUnknownClient, http.StatusBadRequest, "unknown_client"},
	{protocol.ErrInvalidGrant, http.StatusBadRequest, "invalid_grant"},
	{protocol.ErrUnsupportedGrantType, http.StatusBadRequest, "unsupported_grant_type"},
	{protocol.ErrUserExists, http.StatusBadRequest, "user_exists"},
	{protocol.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
}

func lookup(err error) (mapping, bool) {
	for _, m := range mappings {
		if errors.Is(err, m.err) {
			return m, true
		}
	}
	return mapping{}, false
}

// Status returns the HTTP status and error kind for err.
// Errors outside the protocol taxonomy are internal.
func Status(err error) (int, string) {
	if m, ok := lookup(err); ok {
		return m.status, m.kind
	}
	return http.StatusInternalServerError, "internal_server_error"
}

// Error maps err onto a status and writes it. Protocol errors carry their
// sentinel text; internal errors are logged and only described in local env.
func Error(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	if m, ok := lookup(err); ok {
		WriteError(w, m.status, m.kind, m.err.Error())
		return
	}

	log.Error("request failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	message := "internal server error"
	if interceptors.EnvFromContext(r.Context()) == config.EnvLocal {
		message = err.Error()
	}
	WriteError(w, http.StatusInternalServerError, "internal_server_error", message)
}
