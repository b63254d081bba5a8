// Package protocol holds the error taxonomy and wire types shared by the
// session, authorization and resource services.
package protocol

import "errors"

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrUnknownClient        = errors.New("unknown client")
	ErrInvalidGrant         = errors.New("invalid grant")
	ErrUnsupportedGrantType = errors.New("unsupported grant type")
	ErrInvalidToken         = errors.New("invalid token")
	ErrUserNotFound         = errors.New("user not found")
	ErrUserExists           = errors.New("user already exists")
	ErrInvalidRequest       = errors.New("invalid request")
)

// Grant types accepted by the token endpoint.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "bearer"

// TokenSet is the result of a successful token exchange.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}
