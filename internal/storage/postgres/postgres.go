package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"oauthsrv/internal/domain/models"
	"oauthsrv/internal/storage"
)

const uniqueViolation = "23505"

// Storage instance for processing sql queries
type Storage struct {
	dbPool *pgxpool.Pool
}

// New initialize an instance of storage db context.
// storagePath is either a full postgres:// URL or user:pass@host:port/db.
func New(ctx context.Context, storagePath string) (*Storage, error) {
	const op = "storage.postgres.New"

	dbPool, err := pgxpool.New(ctx, getConnString(storagePath))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Storage{dbPool: dbPool}, nil
}

// getConnString Constructing database connection string
func getConnString(storagePath string) string {
	if strings.HasPrefix(storagePath, "postgres://") || strings.HasPrefix(storagePath, "postgresql://") {
		return storagePath
	}
	return fmt.Sprintf("postgres://%s?sslmode=disable", storagePath)
}

// CloseStorage ends database pool connection
func (s *Storage) CloseStorage() {
	s.dbPool.Close()
}

// Ping checks the connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.dbPool.Ping(ctx)
}

// SaveUser saves user in data table 'users'
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.postgres.SaveUser"

	_, err := s.dbPool.Exec(
		ctx,
		"INSERT INTO users(id, username, email, pass_hash, created_at) VALUES ($1, $2, $3, $4, $5)",
		user.ID,
		user.Username,
		user.Email,
		user.PassHash,
		user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return storage.ErrUserExists
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// User gets user from db by specified username
func (s *Storage) User(ctx context.Context, username string) (*models.User, error) {
	return s.user(ctx, "storage.postgres.User",
		"SELECT id, username, email, pass_hash, created_at FROM users WHERE username = $1", username)
}

// UserByID searches user in database by his ID
func (s *Storage) UserByID(ctx context.Context, id string) (*models.User, error) {
	return s.user(ctx, "storage.postgres.UserByID",
		"SELECT id, username, email, pass_hash, created_at FROM users WHERE id = $1", id)
}

func (s *Storage) user(ctx context.Context, op string, query string, arg string) (*models.User, error) {
	var user models.User
	err := s.dbPool.QueryRow(ctx, query, arg).
		Scan(&user.ID, &user.Username, &user.Email, &user.PassHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	scopes, err := s.userScopes(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user.Scopes = scopes
	return &user, nil
}

// userScopes loads the per-client granted scopes of a user
func (s *Storage) userScopes(ctx context.Context, userID string) (map[string]models.Scope, error) {
	rows, err := s.dbPool.Query(ctx, "SELECT client_id, scope FROM user_scopes WHERE user_id = $1", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scopes := make(map[string]models.Scope)
	for rows.Next() {
		var clientID string
		var scope []string
		if err := rows.Scan(&clientID, &scope); err != nil {
			return nil, err
		}
		scopes[clientID] = scope
	}
	return scopes, rows.Err()
}

// DeleteUser removes user and, by cascade, his granted scopes
func (s *Storage) DeleteUser(ctx context.Context, id string) error {
	const op = "storage.postgres.DeleteUser"

	tag, err := s.dbPool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// SaveUserScope upserts scope granted by user to client
func (s *Storage) SaveUserScope(ctx context.Context, userID string, clientID string, scope models.Scope) error {
	const op = "storage.postgres.SaveUserScope"

	_, err := s.dbPool.Exec(
		ctx,
		`INSERT INTO user_scopes(user_id, client_id, scope) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, client_id) DO UPDATE SET scope = EXCLUDED.scope`,
		userID,
		clientID,
		[]string(scope),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return storage.ErrUserNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Client gets registered client by id
func (s *Storage) Client(ctx context.Context, clientID string) (*models.Client, error) {
	const op = "storage.postgres.Client"

	var client models.Client
	err := s.dbPool.QueryRow(
		ctx,
		"SELECT client_id, redirect_uri, secret, created_at FROM clients WHERE client_id = $1",
		clientID,
	).Scan(&client.ID, &client.RedirectURI, &client.Secret, &client.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrClientNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &client, nil
}

// SaveClient creates or updates a client
func (s *Storage) SaveClient(ctx context.Context, client *models.Client) error {
	const op = "storage.postgres.SaveClient"

	createdAt := client.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.dbPool.Exec(
		ctx,
		`INSERT INTO clients(client_id, redirect_uri, secret, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (client_id) DO UPDATE SET redirect_uri = EXCLUDED.redirect_uri, secret = EXCLUDED.secret`,
		client.ID,
		client.RedirectURI,
		client.Secret,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SaveAuthCode saves a models.AuthorizationCode to db
func (s *Storage) SaveAuthCode(ctx context.Context, code *models.AuthorizationCode) error {
	const op = "storage.postgres.SaveAuthCode"

	_, err := s.dbPool.Exec(
		ctx,
		"INSERT INTO authorization_codes(code, user_id, client_id, issued_at, expires_at) VALUES ($1, $2, $3, $4, $5)",
		code.Code,
		code.UserID,
		code.ClientID,
		code.IssuedAt,
		code.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// TakeAuthCode deletes the code and returns it in a single statement,
// so concurrent redemptions cannot both see it
func (s *Storage) TakeAuthCode(ctx context.Context, code string) (*models.AuthorizationCode, error) {
	const op = "storage.postgres.TakeAuthCode"

	var authCode models.AuthorizationCode
	err := s.dbPool.QueryRow(
		ctx,
		`DELETE FROM authorization_codes WHERE code = $1
		RETURNING code, user_id, client_id, issued_at, expires_at`,
		code,
	).Scan(&authCode.Code, &authCode.UserID, &authCode.ClientID, &authCode.IssuedAt, &authCode.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrAuthCodeNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &authCode, nil
}

// SaveRefreshToken saves refresh token record
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.postgres.SaveRefreshToken"

	_, err := s.dbPool.Exec(
		ctx,
		"INSERT INTO refresh_tokens(id, user_id, client_id, issued_at, expires_at) VALUES ($1, $2, $3, $4, $5)",
		token.ID,
		token.UserID,
		token.ClientID,
		token.IssuedAt,
		token.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// TakeRefreshToken deletes the refresh token record and returns it in a single statement
func (s *Storage) TakeRefreshToken(ctx context.Context, id string) (*models.RefreshToken, error) {
	const op = "storage.postgres.TakeRefreshToken"

	var token models.RefreshToken
	err := s.dbPool.QueryRow(
		ctx,
		`DELETE FROM refresh_tokens WHERE id = $1
		RETURNING id, user_id, client_id, issued_at, expires_at`,
		id,
	).Scan(&token.ID, &token.UserID, &token.ClientID, &token.IssuedAt, &token.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &token, nil
}

// RemoveAllUserTokens removes all user tokens in db
func (s *Storage) RemoveAllUserTokens(ctx context.Context, userID string) error {
	const op = "storage.postgres.RemoveAllUserTokens"

	_, err := s.dbPool.Exec(ctx, "DELETE FROM refresh_tokens WHERE user_id = $1", userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteExpired purges expired authorization codes and refresh tokens
func (s *Storage) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.postgres.DeleteExpired"

	var total int64
	err := pgx.BeginFunc(ctx, s.dbPool, func(tx pgx.Tx) error {
		for _, query := range []string{
			"DELETE FROM authorization_codes WHERE expires_at <= $1",
			"DELETE FROM refresh_tokens WHERE expires_at <= $1",
		} {
			tag, err := tx.Exec(ctx, query, now)
			if err != nil {
				return err
			}
			total += tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return total, nil
}
