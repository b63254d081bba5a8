package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oauthsrv/internal/domain/models"
	"oauthsrv/internal/storage"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCacheWithClient(rdb), mr
}

func TestCache_AuthCode_SingleUse(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	code := &models.AuthorizationCode{
		Code:      uuid.NewString(),
		UserID:    "u1",
		ClientID:  "c1",
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Minute),
	}
	require.NoError(t, c.SaveAuthCode(ctx, code))

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.TakeAuthCode(ctx, code.Code)
			if err == nil {
				assert.Equal(t, "u1", got.UserID)
				assert.Equal(t, "c1", got.ClientID)
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	_, err := c.TakeAuthCode(ctx, code.Code)
	require.ErrorIs(t, err, storage.ErrAuthCodeNotFound)
}

func TestCache_AuthCode_ExpiresWithTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	code := &models.AuthorizationCode{Code: "abc", UserID: "u1", ClientID: "c1", ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, c.SaveAuthCode(ctx, code))

	mr.FastForward(61 * time.Second)
	_, err := c.TakeAuthCode(ctx, "abc")
	require.ErrorIs(t, err, storage.ErrAuthCodeNotFound)
}

func TestCache_SaveExpiredRejected(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	err := c.SaveAuthCode(ctx, &models.AuthorizationCode{Code: "x", ExpiresAt: time.Now().Add(-time.Second)})
	require.Error(t, err)
	err = c.SaveRefreshToken(ctx, &models.RefreshToken{ID: "x", ExpiresAt: time.Now().Add(-time.Second)})
	require.Error(t, err)
}

func TestCache_RefreshTokens(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	exp := time.Now().Add(time.Hour)
	require.NoError(t, c.SaveRefreshToken(ctx, &models.RefreshToken{ID: "a", UserID: "u1", ClientID: "c1", ExpiresAt: exp}))
	require.NoError(t, c.SaveRefreshToken(ctx, &models.RefreshToken{ID: "b", UserID: "u1", ClientID: "c1", ExpiresAt: exp}))
	require.NoError(t, c.SaveRefreshToken(ctx, &models.RefreshToken{ID: "c", UserID: "u2", ClientID: "c1", ExpiresAt: exp}))

	got, err := c.TakeRefreshToken(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	members, err := mr.Members("rtu:u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, members)

	_, err = c.TakeRefreshToken(ctx, "a")
	require.ErrorIs(t, err, storage.ErrTokenNotFound)

	require.NoError(t, c.RemoveAllUserTokens(ctx, "u1"))
	_, err = c.TakeRefreshToken(ctx, "b")
	require.ErrorIs(t, err, storage.ErrTokenNotFound)
	assert.False(t, mr.Exists("rtu:u1"))

	_, err = c.TakeRefreshToken(ctx, "c")
	require.NoError(t, err)
}

func TestCache_Ping(t *testing.T) {
	c, _ := newTestCache(t)
	require.NoError(t, c.Ping(context.Background()))
}
