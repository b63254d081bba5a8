package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"oauthsrv/internal/domain/models"
	"oauthsrv/internal/domain/protocol"
	"oauthsrv/internal/lib/jwt"
	"oauthsrv/internal/lib/password"
	"oauthsrv/internal/storage/memory"
)

const sessionTTL = 7 * 24 * time.Hour

type fixture struct {
	svc      *Session
	now      time.Time
	user     *models.User
	password string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{now: time.Unix(1_700_000_000, 0)}
	codec, err := jwt.NewCodec([]byte("test-secret"), "test", jwt.WithClock(func() time.Time { return f.now }))
	require.NoError(t, err)

	hasher := password.NewHasher(bcrypt.MinCost)
	store := memory.New()

	f.password = gofakeit.Password(true, true, true, false, false, 12)
	hash, err := hasher.Hash(f.password)
	require.NoError(t, err)
	f.user = &models.User{ID: uuid.NewString(), Username: gofakeit.Username(), PassHash: hash}
	require.NoError(t, store.SaveUser(context.Background(), f.user))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = New(log, store, hasher, codec, nil, sessionTTL)
	return f
}

func TestLogin_HappyPath(t *testing.T) {
	f := newFixture(t)

	ticket, err := f.svc.Login(context.Background(), f.user.Username, f.password)
	require.NoError(t, err)

	assert.NotEmpty(t, ticket.Token)
	assert.Equal(t, f.user.ID, ticket.UserID)
	assert.Equal(t, f.now.Add(sessionTTL), ticket.ExpiresAt)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{name: "wrong password", username: f.user.Username, password: "nope"},
		{name: "unknown user", username: gofakeit.Username() + "-missing", password: f.password},
		{name: "empty", username: "", password: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Login(context.Background(), tt.username, tt.password)
			require.ErrorIs(t, err, protocol.ErrInvalidCredentials)
		})
	}
}

func TestRenew_SlidingExpiry(t *testing.T) {
	f := newFixture(t)

	ticket, err := f.svc.Login(context.Background(), f.user.Username, f.password)
	require.NoError(t, err)

	// verified one day later: the new token runs a full TTL from then
	f.now = f.now.Add(24 * time.Hour)
	renewed, err := f.svc.Renew(ticket.Token)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, renewed.UserID)
	assert.Equal(t, f.now.Add(sessionTTL), renewed.ExpiresAt)
	assert.True(t, renewed.ExpiresAt.After(ticket.ExpiresAt))

	// the original token expires on its own schedule and does not renew
	f.now = ticket.ExpiresAt
	_, err = f.svc.Renew(ticket.Token)
	require.ErrorIs(t, err, protocol.ErrInvalidToken)

	// the renewed one is still good
	_, err = f.svc.Renew(renewed.Token)
	require.NoError(t, err)
}

func TestRenew_Rejects(t *testing.T) {
	f := newFixture(t)

	codec, err := jwt.NewCodec([]byte("test-secret"), "test", jwt.WithClock(func() time.Time { return f.now }))
	require.NoError(t, err)
	access, _, err := codec.Issue(f.user.ID, jwt.Claims{Kind: jwt.KindAccess, ClientID: "c1"}, time.Hour)
	require.NoError(t, err)

	ticket, err := f.svc.Login(context.Background(), f.user.Username, f.password)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not.a.token"},
		{name: "delegated token", token: access},
		{name: "tampered", token: ticket.Token[:len(ticket.Token)-4] + "AAAA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Renew(tt.token)
			require.ErrorIs(t, err, protocol.ErrInvalidToken)
		})
	}
}

func TestSubject(t *testing.T) {
	f := newFixture(t)

	ticket, err := f.svc.Login(context.Background(), f.user.Username, f.password)
	require.NoError(t, err)

	userID, err := f.svc.Subject(ticket.Token)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, userID)

	_, err = f.svc.Subject("")
	require.ErrorIs(t, err, protocol.ErrInvalidToken)
}
