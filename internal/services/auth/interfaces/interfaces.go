package interfaces

import (
	"context"
	"time"

	"oauthsrv/internal/domain/models"
	"oauthsrv/internal/lib/jwt"
)

type UserStorage interface {
	SaveUser(ctx context.Context, user *models.User) error
	SaveUserScope(ctx context.Context, userID string, clientID string, scope models.Scope) error
}

type ClientStorage interface {
	Client(ctx context.Context, clientID string) (*models.Client, error)
	SaveClient(ctx context.Context, client *models.Client) error
}

// AuthCodeStorage persists authorization codes. TakeAuthCode must find and
// delete in one step so that a code is handed out at most once.
type AuthCodeStorage interface {
	SaveAuthCode(ctx context.Context, code *models.AuthorizationCode) error
	TakeAuthCode(ctx context.Context, code string) (*models.AuthorizationCode, error)
}

// TokenStorage persists refresh tokens, keyed by the token id (jti).
// TakeRefreshToken has the same find-and-delete contract as TakeAuthCode.
type TokenStorage interface {
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	TakeRefreshToken(ctx context.Context, id string) (*models.RefreshToken, error)
	RemoveAllUserTokens(ctx context.Context, userID string) error
}

type PasswordHasher interface {
	Hash(plaintext string) ([]byte, error)
}

type TokenCodec interface {
	Issue(subject string, claims jwt.Claims, ttl time.Duration) (string, time.Time, error)
	Verify(token string) (*jwt.Claims, error)
}
