package resource

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

	"oauthsrv/internal/domain/models"
	"oauthsrv/internal/domain/protocol"
	"oauthsrv/internal/lib/jwt"
	"oauthsrv/internal/storage/memory"
)

type fixture struct {
	svc   *Resource
	store *memory.Storage
	codec *jwt.Codec
	user  *models.User
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{store: memory.New(), now: time.Unix(1_700_000_000, 0)}
	codec, err := jwt.NewCodec([]byte("test-secret"), "", jwt.WithClock(func() time.Time { return f.now }))
	require.NoError(t, err)
	f.codec = codec

	f.user = &models.User{
		ID:       uuid.NewString(),
		Username: gofakeit.Username(),
		Email:    gofakeit.Email(),
		PassHash: []byte("secret-hash"),
	}
	require.NoError(t, f.store.SaveUser(ctx, f.user))
	require.NoError(t, f.store.SaveUserScope(ctx, f.user.ID, "C", models.Scope{"email", "username"}))
	require.NoError(t, f.store.SaveUserScope(ctx, f.user.ID, "D", models.Scope{"email"}))

	f.svc = New(slog.New(slog.NewTextHandler(io.Discard, nil)), f.store, codec)
	return f
}

func (f *fixture) access(t *testing.T, subject string, clientID string) string {
	t.Helper()
	token, _, err := f.codec.Issue(subject, jwt.Claims{Kind: jwt.KindAccess, ClientID: clientID}, 5*time.Minute)
	require.NoError(t, err)
	return token
}

func TestResolve_ProjectsGrantedScopePerClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		clientID string
		want     map[string]string
	}{
		{clientID: "C", want: map[string]string{"email": f.user.Email, "username": f.user.Username}},
		{clientID: "D", want: map[string]string{"email": f.user.Email}},
		{clientID: "E", want: map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.clientID, func(t *testing.T) {
			got, err := f.svc.Resolve(ctx, f.access(t, f.user.ID, tt.clientID))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_NeverExposesUnknownAttributes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SaveUserScope(ctx, f.user.ID, "C", models.Scope{"password", "PassHash", "id", "nickname"}))

	got, err := f.svc.Resolve(ctx, f.access(t, f.user.ID, "C"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"id": f.user.ID}, got)
}

func TestResolve_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, _, err := f.codec.Issue(f.user.ID, jwt.Claims{Kind: jwt.KindSession}, time.Hour)
	require.NoError(t, err)
	refresh, _, err := f.codec.Issue(f.user.ID, jwt.Claims{Kind: jwt.KindRefresh, ClientID: "C"}, time.Hour)
	require.NoError(t, err)
	expired := f.access(t, f.user.ID, "C")

	tests := []struct {
		name  string
		token string
		err   error
	}{
		{name: "empty", token: "", err: protocol.ErrInvalidToken},
		{name: "garbage", token: "x.y.z", err: protocol.ErrInvalidToken},
		{name: "session token", token: session, err: protocol.ErrInvalidToken},
		{name: "refresh token", token: refresh, err: protocol.ErrInvalidToken},
		{name: "deleted user", token: f.access(t, uuid.NewString(), "C"), err: protocol.ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Resolve(ctx, tt.token)
			require.ErrorIs(t, err, tt.err)
		})
	}

	f.now = f.now.Add(5 * time.Minute)
	_, err = f.svc.Resolve(ctx, expired)
	require.ErrorIs(t, err, protocol.ErrInvalidToken)
}

func TestGreeting(t *testing.T) {
	f := newFixture(t)

	msg, err := f.svc.Greeting(context.Background(), f.access(t, f.user.ID, "E"))
	require.NoError(t, err)
	assert.Equal(t, "Hello, "+f.user.Username+"! This is protected data.", msg)
}
