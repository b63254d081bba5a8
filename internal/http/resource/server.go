// Package resourcehttp serves user attributes to holders of access tokens.
package resourcehttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"oauthsrv/internal/http/respond"
)

type Resource interface {
	Resolve(ctx context.Context, token string) (map[string]string, error)
	Greeting(ctx context.Context, token string) (string, error)
}

type serverAPI struct {
	log      *slog.Logger
	resource Resource
}

func Register(r chi.Router, log *slog.Logger, resource Resource) {
	s := &serverAPI{log: log, resource: resource}

	r.Get("/user", s.User)
	r.Get("/secure-data", s.SecureData)
}

// User returns exactly the attributes granted to the token's client.
func (s *serverAPI) User(w http.ResponseWriter, r *http.Request) {
	attrs, err := s.resource.Resolve(r.Context(), accessToken(r))
	if err != nil {
		respond.Error(w, r, s.log, err)
		return
	}
	_ = respond.JSON(w, http.StatusOK, attrs)
}

func (s *serverAPI) SecureData(w http.ResponseWriter, r *http.Request) {
	msg, err := s.resource.Greeting(r.Context(), accessToken(r))
	if err != nil {
		respond.Error(w, r, s.log, err)
		return
	}
	_ = respond.JSON(w, http.StatusOK, map[string]string{"message": msg})
}

// accessToken reads the access_token query parameter, falling back to a
// bearer Authorization header.
func accessToken(r *http.Request) string {
	if t := r.URL.Query().Get("access_token"); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
