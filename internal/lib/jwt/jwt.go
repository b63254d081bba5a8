package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenInvalid         = errors.New("token is invalid")
	ErrTokenExpired         = errors.New("token is expired")
	ErrTokenClaimsIncorrect = errors.New("token claims are incorrect")
	ErrEmptySecret          = errors.New("signing secret is empty")
)

// Kind tells which flow a token belongs to.
type Kind string

const (
	KindSession Kind = "session"
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is the payload of every token the codec signs.
// Session tokens carry only a subject; delegated (access/refresh) tokens
// are additionally bound to a client.
type Claims struct {
	Kind     Kind   `json:"kind"`
	ClientID string `json:"client_id,omitempty"`
	jwt.RegisteredClaims
}

// Delegated reports whether the claims belong to an access or refresh token.
func (c *Claims) Delegated() bool {
	return c.Kind == KindAccess || c.Kind == KindRefresh
}

// Codec signs and verifies HS256 tokens with a process-wide symmetric key.
// It holds no mutable state and is safe for concurrent use.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// Option customizes a Codec.
type Option func(*Codec)

// WithClock replaces time.Now, used by tests to move through TTL windows.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec creates a codec for the given secret and issuer.
func NewCodec(secret []byte, issuer string, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	c := &Codec{
		secret: secret,
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	}
	if issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(issuer))
	}
	c.parser = jwt.NewParser(parserOpts...)
	return c, nil
}

// Issue signs claims for subject, valid for ttl from now.
// Returns the signed token and its expiry.
func (c *Codec) Issue(subject string, claims Claims, ttl time.Duration) (string, time.Time, error) {
	now := c.now()
	claims.Subject = subject
	claims.Issuer = c.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
	if err := validateClaims(&claims); err != nil {
		return "", time.Time{}, err
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return token, claims.ExpiresAt.Time, nil
}

// Verify checks signature, algorithm, issuer and expiry, and returns the claims.
// Any failure yields an error and no claims.
func (c *Codec) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if err := validateClaims(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// validateClaims checks the claim shape required by each token kind.
func validateClaims(claims *Claims) error {
	if claims.Subject == "" || claims.ID == "" {
		return ErrTokenClaimsIncorrect
	}
	switch claims.Kind {
	case KindSession:
		if claims.ClientID != "" {
			return ErrTokenClaimsIncorrect
		}
	case KindAccess, KindRefresh:
		if claims.ClientID == "" {
			return ErrTokenClaimsIncorrect
		}
	default:
		return ErrTokenClaimsIncorrect
	}
	return nil
}
