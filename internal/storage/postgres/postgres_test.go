package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oauthsrv/internal/domain/models"
	"oauthsrv/internal/storage"
)

// newTestStorage connects to the database named by TEST_STORAGE_PATH
// (a postgres:// URL) and applies the migrations.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	dsn := os.Getenv("TEST_STORAGE_PATH")
	if dsn == "" {
		t.Skip("TEST_STORAGE_PATH is not set")
	}

	m, err := migrate.New("file://../../../migrations", dsn)
	require.NoError(t, err)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err)
	}

	s, err := New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(s.CloseStorage)
	require.NoError(t, s.Ping(context.Background()))
	return s
}

func TestGetConnString(t *testing.T) {
	assert.Equal(t, "postgres://u:p@h:5432/db", getConnString("postgres://u:p@h:5432/db"))
	assert.Equal(t, "postgres://u:p@h:5432/db?sslmode=disable", getConnString("u:p@h:5432/db"))
}

func TestStorage_UserLifecycle(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	user := &models.User{
		ID:        uuid.NewString(),
		Username:  gofakeit.Username() + uuid.NewString()[:8],
		Email:     gofakeit.Email(),
		PassHash:  []byte("hash"),
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.SaveUser(ctx, user))
	require.ErrorIs(t, s.SaveUser(ctx, &models.User{ID: uuid.NewString(), Username: user.Username, PassHash: []byte("x"), CreatedAt: time.Now()}), storage.ErrUserExists)

	require.NoError(t, s.SaveUserScope(ctx, user.ID, "c1", models.Scope{"email", "username"}))
	require.NoError(t, s.SaveUserScope(ctx, user.ID, "c1", models.Scope{"email"}))

	got, err := s.User(ctx, user.Username)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, models.Scope{"email"}, got.GrantedScope("c1"))

	require.NoError(t, s.DeleteUser(ctx, user.ID))
	_, err = s.UserByID(ctx, user.ID)
	require.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestStorage_Client(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	id := "client-" + uuid.NewString()
	require.NoError(t, s.SaveClient(ctx, &models.Client{ID: id, RedirectURI: "http://localhost/a"}))
	require.NoError(t, s.SaveClient(ctx, &models.Client{ID: id, RedirectURI: "http://localhost/b"}))

	got, err := s.Client(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost/b", got.RedirectURI)

	_, err = s.Client(ctx, "missing-"+uuid.NewString())
	require.ErrorIs(t, err, storage.ErrClientNotFound)
}

func TestStorage_TakeAuthCode_Concurrent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	code := &models.AuthorizationCode{
		Code:      uuid.NewString(),
		UserID:    uuid.NewString(),
		ClientID:  "c1",
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Minute),
	}
	require.NoError(t, s.SaveAuthCode(ctx, code))

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.TakeAuthCode(ctx, code.Code); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestStorage_RefreshTokens(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	userID := uuid.NewString()
	now := time.Now()
	a := &models.RefreshToken{ID: uuid.NewString(), UserID: userID, ClientID: "c1", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
	b := &models.RefreshToken{ID: uuid.NewString(), UserID: userID, ClientID: "c1", IssuedAt: now, ExpiresAt: now.Add(-time.Second)}
	require.NoError(t, s.SaveRefreshToken(ctx, a))
	require.NoError(t, s.SaveRefreshToken(ctx, b))

	n, err := s.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	_, err = s.TakeRefreshToken(ctx, b.ID)
	require.ErrorIs(t, err, storage.ErrTokenNotFound)

	require.NoError(t, s.RemoveAllUserTokens(ctx, userID))
	_, err = s.TakeRefreshToken(ctx, a.ID)
	require.ErrorIs(t, err, storage.ErrTokenNotFound)
}
