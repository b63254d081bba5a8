// Package auth implements the consent and authorization-code flow: user
// registration, code issuance, code redemption and refresh-token rotation.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"oauthsrv/internal/domain/models"
	"oauthsrv/internal/domain/protocol"
	"oauthsrv/internal/lib/jwt"
	"oauthsrv/internal/lib/metrics"
	"oauthsrv/internal/services/auth/interfaces"
	"oauthsrv/internal/storage"
)

// TTLs are the lifetimes of the credentials the flow mints.
type TTLs struct {
	AuthorizationCode time.Duration
	AccessToken       time.Duration
	RefreshToken      time.Duration
}

type Auth struct {
	log      *slog.Logger
	users    interfaces.UserStorage
	clients  interfaces.ClientStorage
	codes    interfaces.AuthCodeStorage
	tokens   interfaces.TokenStorage
	password interfaces.PasswordHasher
	codec    interfaces.TokenCodec
	metrics  *metrics.Metrics
	ttls     TTLs
	now      func() time.Time
}

// New returns a new instance of the Auth service
func New(
	log *slog.Logger,
	users interfaces.UserStorage,
	clients interfaces.ClientStorage,
	codes interfaces.AuthCodeStorage,
	tokens interfaces.TokenStorage,
	password interfaces.PasswordHasher,
	codec interfaces.TokenCodec,
	metrics *metrics.Metrics,
	ttls TTLs,
) *Auth {
	return &Auth{
		log:      log,
		users:    users,
		clients:  clients,
		codes:    codes,
		tokens:   tokens,
		password: password,
		codec:    codec,
		metrics:  metrics,
		ttls:     ttls,
		now:      time.Now,
	}
}

// WithClock replaces time.Now for code expiry checks.
func (a *Auth) WithClock(now func() time.Time) *Auth {
	a.now = now
	return a
}

// RegisterNewUser creates a user with a hashed password and returns its id.
func (a *Auth) RegisterNewUser(ctx context.Context, username string, password string, email string) (string, error) {
	const op = "auth.RegisterNewUser"
	log := a.log.With(slog.String("op", op), slog.String("username", username))

	if username == "" || password == "" {
		return "", fmt.Errorf("%s: %w", op, protocol.ErrInvalidRequest)
	}

	log.Info("registering user")

	passHash, err := a.password.Hash(password)
	if err != nil {
		log.Error("failed to generate password hash", slog.String("error", err.Error()))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	user := &models.User{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     email,
		PassHash:  passHash,
		CreatedAt: a.now(),
	}
	if err := a.users.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("user already exists")
			return "", fmt.Errorf("%s: %w", op, protocol.ErrUserExists)
		}
		log.Error("failed to save user", slog.String("error", err.Error()))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.String("user_id", user.ID))
	return user.ID, nil
}

// SeedClients registers clients, replacing existing ones with the same id.
func (a *Auth) SeedClients(ctx context.Context, clients []models.Client) error {
	const op = "auth.SeedClients"

	for i := range clients {
		c := clients[i]
		if c.CreatedAt.IsZero() {
			c.CreatedAt = a.now()
		}
		if err := a.clients.SaveClient(ctx, &c); err != nil {
			return fmt.Errorf("%s: %s: %w", op, c.ID, err)
		}
		a.log.Info("client registered", slog.String("op", op), slog.String("client_id", c.ID))
	}
	return nil
}

// Client returns the registered client or protocol.ErrUnknownClient.
func (a *Auth) Client(ctx context.Context, clientID string) (*models.Client, error) {
	const op = "auth.Client"

	if clientID == "" {
		return nil, fmt.Errorf("%s: %w", op, protocol.ErrUnknownClient)
	}
	client, err := a.clients.Client(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return nil, fmt.Errorf("%s: %w", op, protocol.ErrUnknownClient)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return client, nil
}

// Authorize records the user's consent to share scope with clientID, mints a
// single-use authorization code and returns the redirect target carrying it.
// An empty redirectURI selects the client's registered URI; any other value
// must match it exactly.
func (a *Auth) Authorize(
	ctx context.Context,
	userID string,
	clientID string,
	redirectURI string,
	scope string,
	state string,
) (string, error) {
	const op = "auth.Authorize"
	log := a.log.With(slog.String("op", op), slog.String("client_id", clientID), slog.String("user_id", userID))

	client, err := a.Client(ctx, clientID)
	if err != nil {
		log.Warn("authorization for unknown client", slog.String("error", err.Error()))
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if redirectURI != "" && redirectURI != client.RedirectURI {
		log.Warn("redirect uri mismatch", slog.String("redirect_uri", redirectURI))
		return "", fmt.Errorf("%s: redirect_uri mismatch: %w", op, protocol.ErrInvalidRequest)
	}
	target, err := url.Parse(client.RedirectURI)
	if err != nil {
		return "", fmt.Errorf("%s: registered redirect_uri: %w", op, err)
	}

	granted := models.ParseScope(scope)
	if err := a.users.SaveUserScope(ctx, userID, clientID, granted); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return "", fmt.Errorf("%s: %w", op, protocol.ErrUserNotFound)
		}
		log.Error("failed to save granted scope", slog.String("error", err.Error()))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	now := a.now()
	code := &models.AuthorizationCode{
		Code:      uuid.NewString(),
		UserID:    userID,
		ClientID:  clientID,
		IssuedAt:  now,
		ExpiresAt: now.Add(a.ttls.AuthorizationCode),
	}
	if err := a.codes.SaveAuthCode(ctx, code); err != nil {
		log.Error("failed to save authorization code", slog.String("error", err.Error()))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	q := target.Query()
	q.Set("code", code.Code)
	if state != "" {
		q.Set("state", state)
	}
	target.RawQuery = q.Encode()

	log.Info("authorization code issued", slog.String("scope", granted.String()))
	return target.String(), nil
}

// Exchange dispatches a token request on its grant type.
func (a *Auth) Exchange(ctx context.Context, grantType string, code string, refreshToken string) (*protocol.TokenSet, error) {
	const op = "auth.Exchange"

	var (
		set *protocol.TokenSet
		err error
	)
	switch grantType {
	case protocol.GrantAuthorizationCode:
		set, err = a.ExchangeCode(ctx, code)
	case protocol.GrantRefreshToken:
		set, err = a.Refresh(ctx, refreshToken)
	default:
		a.metrics.GrantError("unsupported")
		return nil, fmt.Errorf("%s: %q: %w", op, grantType, protocol.ErrUnsupportedGrantType)
	}
	if err != nil {
		if errors.Is(err, protocol.ErrInvalidGrant) {
			a.metrics.GrantError(grantType)
		}
		return nil, err
	}
	a.metrics.TokensIssued(grantType)
	return set, nil
}

// ExchangeCode redeems an authorization code. The code is removed by the
// same store call that finds it, so concurrent redemptions cannot both win.
func (a *Auth) ExchangeCode(ctx context.Context, code string) (*protocol.TokenSet, error) {
	const op = "auth.ExchangeCode"
	log := a.log.With(slog.String("op", op))

	if code == "" {
		return nil, fmt.Errorf("%s: missing code: %w", op, protocol.ErrInvalidGrant)
	}

	ac, err := a.codes.TakeAuthCode(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrAuthCodeNotFound) {
			log.Info("unknown or consumed authorization code")
			return nil, fmt.Errorf("%s: %w", op, protocol.ErrInvalidGrant)
		}
		log.Error("failed to take authorization code", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if ac.Expired(a.now()) {
		log.Info("authorization code expired", slog.String("client_id", ac.ClientID))
		return nil, fmt.Errorf("%s: code expired: %w", op, protocol.ErrInvalidGrant)
	}

	set, err := a.issueTokenSet(ctx, ac.UserID, ac.ClientID)
	if err != nil {
		log.Error("failed to issue tokens", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("authorization code redeemed", slog.String("client_id", ac.ClientID), slog.String("user_id", ac.UserID))
	return set, nil
}

// Refresh rotates a refresh token: the presented one is consumed and a new
// access/refresh pair bound to the same user and client is returned.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (*protocol.TokenSet, error) {
	const op = "auth.Refresh"
	log := a.log.With(slog.String("op", op))

	if refreshToken == "" {
		return nil, fmt.Errorf("%s: missing refresh_token: %w", op, protocol.ErrInvalidGrant)
	}
	claims, err := a.codec.Verify(refreshToken)
	if err != nil {
		log.Info("refresh token rejected", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%s: %w", op, protocol.ErrInvalidGrant)
	}
	if claims.Kind != jwt.KindRefresh {
		return nil, fmt.Errorf("%s: not a refresh token: %w", op, protocol.ErrInvalidGrant)
	}

	record, err := a.tokens.TakeRefreshToken(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			log.Warn("refresh token revoked or already rotated", slog.String("user_id", claims.Subject))
			return nil, fmt.Errorf("%s: %w", op, protocol.ErrInvalidGrant)
		}
		log.Error("failed to take refresh token", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if record.UserID != claims.Subject || record.ClientID != claims.ClientID || record.Expired(a.now()) {
		return nil, fmt.Errorf("%s: %w", op, protocol.ErrInvalidGrant)
	}

	set, err := a.issueTokenSet(ctx, record.UserID, record.ClientID)
	if err != nil {
		log.Error("failed to issue tokens", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("refresh token rotated", slog.String("client_id", record.ClientID), slog.String("user_id", record.UserID))
	return set, nil
}

// Logout revokes every refresh token the user holds.
func (a *Auth) Logout(ctx context.Context, userID string) error {
	const op = "auth.Logout"

	if err := a.tokens.RemoveAllUserTokens(ctx, userID); err != nil {
		a.log.Error("failed to revoke refresh tokens", slog.String("op", op), slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w", op, err)
	}
	a.log.Info("user tokens revoked", slog.String("op", op), slog.String("user_id", userID))
	return nil
}

func (a *Auth) issueTokenSet(ctx context.Context, userID string, clientID string) (*protocol.TokenSet, error) {
	access, _, err := a.codec.Issue(userID, jwt.Claims{Kind: jwt.KindAccess, ClientID: clientID}, a.ttls.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}

	refreshClaims := jwt.Claims{Kind: jwt.KindRefresh, ClientID: clientID}
	refreshClaims.ID = uuid.NewString()
	refresh, expiresAt, err := a.codec.Issue(userID, refreshClaims, a.ttls.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("issuing refresh token: %w", err)
	}

	record := &models.RefreshToken{
		ID:        refreshClaims.ID,
		UserID:    userID,
		ClientID:  clientID,
		IssuedAt:  a.now(),
		ExpiresAt: expiresAt,
	}
	if err := a.tokens.SaveRefreshToken(ctx, record); err != nil {
		return nil, fmt.Errorf("saving refresh token: %w", err)
	}

	return &protocol.TokenSet{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    protocol.TokenTypeBearer,
		ExpiresIn:    int64(a.ttls.AccessToken / time.Second),
	}, nil
}
