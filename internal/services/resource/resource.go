// Package resource releases user attributes to the bearer of an access token,
// restricted to what the user granted the token's client.
package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"oauthsrv/internal/domain/models"
	"oauthsrv/internal/domain/protocol"
	"oauthsrv/internal/lib/jwt"
	"oauthsrv/internal/services/resource/interfaces"
	"oauthsrv/internal/storage"
)

type Resource struct {
	log   *slog.Logger
	users interfaces.UserProvider
	codec interfaces.TokenVerifier
}

func New(log *slog.Logger, users interfaces.UserProvider, codec interfaces.TokenVerifier) *Resource {
	return &Resource{
		log:   log,
		users: users,
		codec: codec,
	}
}

// Resolve verifies an access token and returns exactly the attributes its
// user granted to its client. Granted names outside the attribute schema
// yield no value.
func (r *Resource) Resolve(ctx context.Context, token string) (map[string]string, error) {
	const op = "resource.Resolve"

	user, claims, err := r.owner(ctx, op, token)
	if err != nil {
		return nil, err
	}

	granted := user.GrantedScope(claims.ClientID)
	projected := make(map[string]string, len(granted))
	for _, name := range granted {
		if v, ok := user.Attribute(name); ok {
			projected[name] = v
		}
	}
	return projected, nil
}

// Greeting returns a message for the owner of an access token.
func (r *Resource) Greeting(ctx context.Context, token string) (string, error) {
	const op = "resource.Greeting"

	user, _, err := r.owner(ctx, op, token)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Hello, %s! This is protected data.", user.Username), nil
}

func (r *Resource) owner(ctx context.Context, op string, token string) (*models.User, *jwt.Claims, error) {
	log := r.log.With(slog.String("op", op))

	if token == "" {
		return nil, nil, fmt.Errorf("%s: missing token: %w", op, protocol.ErrInvalidToken)
	}
	claims, err := r.codec.Verify(token)
	if err != nil {
		log.Debug("access token rejected", slog.String("error", err.Error()))
		return nil, nil, fmt.Errorf("%s: %w", op, protocol.ErrInvalidToken)
	}
	if claims.Kind != jwt.KindAccess {
		return nil, nil, fmt.Errorf("%s: not an access token: %w", op, protocol.ErrInvalidToken)
	}

	user, err := r.users.UserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Info("token owner no longer exists", slog.String("user_id", claims.Subject))
			return nil, nil, fmt.Errorf("%s: %w", op, protocol.ErrUserNotFound)
		}
		log.Error("failed to get user", slog.String("error", err.Error()))
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, claims, nil
}
