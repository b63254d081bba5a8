package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oauthsrv/internal/app/interceptors"
	"oauthsrv/internal/domain/protocol"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{fmt.Errorf("session.Login: %w", protocol.ErrInvalidCredentials), http.StatusUnauthorized, "invalid_credentials"},
		{protocol.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
		{protocol.ErrUserNotFound, http.StatusUnauthorized, "user_not_found"},
		{protocol.ErrUnknownClient, http.StatusBadRequest, "unknown_client"},
		{fmt.Errorf("auth.ExchangeCode: %w", protocol.ErrInvalidGrant), http.StatusBadRequest, "invalid_grant"},
		{protocol.ErrUnsupportedGrantType, http.StatusBadRequest, "unsupported_grant_type"},
		{protocol.ErrUserExists, http.StatusBadRequest, "user_exists"},
		{protocol.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
		{errors.New("connection refused"), http.StatusInternalServerError, "internal_server_error"},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			status, kind := Status(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestError_HidesInternalDetail(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := fmt.Errorf("postgres.User: %w", errors.New("dial tcp 10.0.0.1:5432: refused"))

	rec := httptest.NewRecorder()
	Error(rec, httptest.NewRequest(http.MethodGet, "/user", nil), log, err)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ErrorResponse{Error: "internal_server_error", Message: "internal server error"}, decode(t, rec))

	rec = httptest.NewRecorder()
	var req *http.Request
	interceptors.EnvMiddleware("local")(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		req = r
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/user", nil))
	Error(rec, req, log, err)
	assert.Contains(t, decode(t, rec).Message, "refused")
}

func TestError_ProtocolMessage(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	rec := httptest.NewRecorder()
	Error(rec, httptest.NewRequest(http.MethodPost, "/token", nil), log, fmt.Errorf("auth.Refresh: %w", protocol.ErrInvalidGrant))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, ErrorResponse{Error: "invalid_grant", Message: "invalid grant"}, decode(t, rec))
}
