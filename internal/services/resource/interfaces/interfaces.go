package interfaces

import (
	"context"

	"oauthsrv/internal/domain/models"
	"oauthsrv/internal/lib/jwt"
)

type UserProvider interface {
	UserByID(ctx context.Context, id string) (*models.User, error)
}

type TokenVerifier interface {
	Verify(token string) (*jwt.Claims, error)
}
