package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"oauthsrv/internal/config"
	"oauthsrv/internal/domain/models"
	"oauthsrv/internal/storage"
)

// Redis keys
// -- ac: authorization code
// -- rt: refresh token record
// -- rtu: set of refresh token ids per user
const (
	authCodeKey         = "ac"
	refreshTokenKey     = "rt"
	userRefreshTokenKey = "rtu"
)

var errAlreadyExpired = errors.New("record already expired")

// Cache keeps short-lived credentials in redis. Expiry is delegated to redis TTLs
// and redemption uses GETDEL, so a credential is handed out at most once.
type Cache struct {
	rdb redis.UniversalClient
	now func() time.Time
}

// NewCache creates new instance of redis client
func NewCache(conf *config.RedisConfig) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Host + ":" + strconv.Itoa(conf.Port),
		Password: conf.Password,
		DB:       conf.DB,
	})
	return NewCacheWithClient(rdb)
}

// NewCacheWithClient wraps an existing client.
func NewCacheWithClient(rdb redis.UniversalClient) *Cache {
	return &Cache{rdb: rdb, now: time.Now}
}

// Close closes the client
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func key(prefix string, id string) string {
	return fmt.Sprintf("%s:%s", prefix, id)
}

// SaveAuthCode saves the code until its expiry
func (c *Cache) SaveAuthCode(ctx context.Context, code *models.AuthorizationCode) error {
	ttl := code.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return errAlreadyExpired
	}
	data, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("failed to marshal authorization code: %w", err)
	}
	if err := c.rdb.Set(ctx, key(authCodeKey, code.Code), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}
	return nil
}

// TakeAuthCode gets and deletes the code atomically
func (c *Cache) TakeAuthCode(ctx context.Context, code string) (*models.AuthorizationCode, error) {
	data, err := c.rdb.GetDel(ctx, key(authCodeKey, code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrAuthCodeNotFound
		}
		return nil, fmt.Errorf("failed to take authorization code: %w", err)
	}
	var authCode models.AuthorizationCode
	if err := json.Unmarshal(data, &authCode); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization code: %w", err)
	}
	return &authCode, nil
}

// SaveRefreshToken saves the record and indexes it under its user
func (c *Cache) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	ttl := token.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return errAlreadyExpired
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh token: %w", err)
	}

	userKey := key(userRefreshTokenKey, token.UserID)
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key(refreshTokenKey, token.ID), data, ttl)
		pipe.SAdd(ctx, userKey, token.ID)
		pipe.Expire(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// TakeRefreshToken gets and deletes the record atomically
func (c *Cache) TakeRefreshToken(ctx context.Context, id string) (*models.RefreshToken, error) {
	data, err := c.rdb.GetDel(ctx, key(refreshTokenKey, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to take refresh token: %w", err)
	}
	var token models.RefreshToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal refresh token: %w", err)
	}
	// index cleanup is best effort, a stale id in the set points at nothing
	_ = c.rdb.SRem(ctx, key(userRefreshTokenKey, token.UserID), id).Err()
	return &token, nil
}

// RemoveAllUserTokens deletes every refresh token indexed under the user
func (c *Cache) RemoveAllUserTokens(ctx context.Context, userID string) error {
	userKey := key(userRefreshTokenKey, userID)
	ids, err := c.rdb.SMembers(ctx, userKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list user refresh tokens: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, key(refreshTokenKey, id))
	}
	keys = append(keys, userKey)
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to remove user refresh tokens: %w", err)
	}
	return nil
}
