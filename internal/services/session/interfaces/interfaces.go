package interfaces

import (
	"context"
	"time"

	"oauthsrv/internal/domain/models"
	"oauthsrv/internal/lib/jwt"
)

// UserProvider looks users up by their login name.
type UserProvider interface {
	User(ctx context.Context, username string) (*models.User, error)
}

// PasswordVerifier is the one-way password check.
type PasswordVerifier interface {
	Verify(plaintext string, hash []byte) bool
}

// TokenCodec signs and verifies session tokens.
type TokenCodec interface {
	Issue(subject string, claims jwt.Claims, ttl time.Duration) (string, time.Time, error)
	Verify(token string) (*jwt.Claims, error)
}
