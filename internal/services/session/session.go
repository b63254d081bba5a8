// Package session owns the sliding-expiration login session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"oauthsrv/internal/domain/protocol"
	"oauthsrv/internal/lib/jwt"
	"oauthsrv/internal/lib/metrics"
	"oauthsrv/internal/services/session/interfaces"
	"oauthsrv/internal/storage"
)

// Ticket is a freshly minted session token.
type Ticket struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

type Session struct {
	log      *slog.Logger
	users    interfaces.UserProvider
	password interfaces.PasswordVerifier
	codec    interfaces.TokenCodec
	metrics  *metrics.Metrics
	ttl      time.Duration
}

// New returns a new instance of the Session service
func New(
	log *slog.Logger,
	users interfaces.UserProvider,
	password interfaces.PasswordVerifier,
	codec interfaces.TokenCodec,
	metrics *metrics.Metrics,
	ttl time.Duration,
) *Session {
	return &Session{
		log:      log,
		users:    users,
		password: password,
		codec:    codec,
		metrics:  metrics,
		ttl:      ttl,
	}
}

// Login checks the credentials and issues a session token valid for the full TTL.
// Unknown users and wrong passwords both yield protocol.ErrInvalidCredentials.
func (s *Session) Login(ctx context.Context, username string, password string) (*Ticket, error) {
	const op = "session.Login"
	log := s.log.With(slog.String("op", op), slog.String("username", username))

	user, err := s.users.User(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Info("user not found")
			s.metrics.Login(false)
			return nil, fmt.Errorf("%s: %w", op, protocol.ErrInvalidCredentials)
		}
		log.Error("failed to get user", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !s.password.Verify(password, user.PassHash) {
		log.Info("invalid password")
		s.metrics.Login(false)
		return nil, fmt.Errorf("%s: %w", op, protocol.ErrInvalidCredentials)
	}

	ticket, err := s.issue(user.ID)
	if err != nil {
		log.Error("failed to issue session token", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.Login(true)
	log.Info("user logged in", slog.String("user_id", user.ID))
	return ticket, nil
}

// Renew verifies a session token and mints a replacement valid for a full new TTL.
// Expired, tampered or non-session tokens yield protocol.ErrInvalidToken and are never extended.
func (s *Session) Renew(token string) (*Ticket, error) {
	const op = "session.Renew"

	if token == "" {
		return nil, fmt.Errorf("%s: %w", op, protocol.ErrInvalidToken)
	}
	claims, err := s.codec.Verify(token)
	if err != nil {
		s.log.Debug("session token rejected", slog.String("op", op), slog.String("error", err.Error()))
		return nil, fmt.Errorf("%s: %w", op, protocol.ErrInvalidToken)
	}
	if claims.Kind != jwt.KindSession {
		return nil, fmt.Errorf("%s: %w", op, protocol.ErrInvalidToken)
	}

	ticket, err := s.issue(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ticket, nil
}

// Subject verifies a session token without renewing it and returns its user id.
func (s *Session) Subject(token string) (string, error) {
	const op = "session.Subject"

	claims, err := s.codec.Verify(token)
	if err != nil || claims.Kind != jwt.KindSession {
		return "", fmt.Errorf("%s: %w", op, protocol.ErrInvalidToken)
	}
	return claims.Subject, nil
}

func (s *Session) issue(userID string) (*Ticket, error) {
	token, expiresAt, err := s.codec.Issue(userID, jwt.Claims{Kind: jwt.KindSession}, s.ttl)
	if err != nil {
		return nil, err
	}
	return &Ticket{Token: token, UserID: userID, ExpiresAt: expiresAt}, nil
}

// TTL is the lifetime of every issued session token.
func (s *Session) TTL() time.Duration {
	return s.ttl
}
