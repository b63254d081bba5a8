// Package memory is an in-process store for every collection. It backs local
// runs (empty storage path) and the service tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"oauthsrv/internal/domain/models"
	"oauthsrv/internal/storage"
)

// Storage keeps users, clients, authorization codes and refresh tokens in maps.
// Take operations run under the write lock, so a code or token is handed out once.
type Storage struct {
	mu          sync.RWMutex
	users       map[string]*models.User // by id
	usernames   map[string]string       // username -> id
	clients     map[string]*models.Client
	authCodes   map[string]*models.AuthorizationCode
	refreshToks map[string]*models.RefreshToken
}

// New creates an empty storage.
func New() *Storage {
	return &Storage{
		users:       make(map[string]*models.User),
		usernames:   make(map[string]string),
		clients:     make(map[string]*models.Client),
		authCodes:   make(map[string]*models.AuthorizationCode),
		refreshToks: make(map[string]*models.RefreshToken),
	}
}

// Ping always succeeds.
func (s *Storage) Ping(context.Context) error { return nil }

// SaveUser stores a new user; usernames are unique.
func (s *Storage) SaveUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usernames[user.Username]; ok {
		return storage.ErrUserExists
	}
	if _, ok := s.users[user.ID]; ok {
		return storage.ErrUserExists
	}
	s.users[user.ID] = cloneUser(user)
	s.usernames[user.Username] = user.ID
	return nil
}

// User gets user by username.
func (s *Storage) User(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usernames[username]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return cloneUser(s.users[id]), nil
}

// UserByID gets user by id.
func (s *Storage) UserByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return cloneUser(user), nil
}

// DeleteUser removes a user. Issued tokens are left alone.
func (s *Storage) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return storage.ErrUserNotFound
	}
	delete(s.usernames, user.Username)
	delete(s.users, id)
	return nil
}

// SaveUserScope sets the scope granted by userID to clientID, replacing any previous grant.
func (s *Storage) SaveUserScope(_ context.Context, userID string, clientID string, scope models.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	if user.Scopes == nil {
		user.Scopes = make(map[string]models.Scope)
	}
	user.Scopes[clientID] = slices.Clone(scope)
	return nil
}

// Client gets a registered client.
func (s *Storage) Client(_ context.Context, clientID string) (*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		return nil, storage.ErrClientNotFound
	}
	c := *client
	return &c, nil
}

// SaveClient creates or replaces a client.
func (s *Storage) SaveClient(_ context.Context, client *models.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *client
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.clients[c.ID] = &c
	return nil
}

// SaveAuthCode stores an authorization code.
func (s *Storage) SaveAuthCode(_ context.Context, code *models.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *code
	s.authCodes[c.Code] = &c
	return nil
}

// TakeAuthCode removes and returns an authorization code in one step.
func (s *Storage) TakeAuthCode(_ context.Context, code string) (*models.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.authCodes[code]
	if !ok {
		return nil, storage.ErrAuthCodeNotFound
	}
	delete(s.authCodes, code)
	return c, nil
}

// SaveRefreshToken stores a refresh token record.
func (s *Storage) SaveRefreshToken(_ context.Context, token *models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := *token
	s.refreshToks[t.ID] = &t
	return nil
}

// TakeRefreshToken removes and returns a refresh token record in one step.
func (s *Storage) TakeRefreshToken(_ context.Context, id string) (*models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.refreshToks[id]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	delete(s.refreshToks, id)
	return t, nil
}

// RemoveAllUserTokens deletes every refresh token of a user.
func (s *Storage) RemoveAllUserTokens(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.refreshToks {
		if t.UserID == userID {
			delete(s.refreshToks, id)
		}
	}
	return nil
}

// DeleteExpired purges codes and refresh tokens expired at now.
func (s *Storage) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, c := range s.authCodes {
		if c.Expired(now) {
			delete(s.authCodes, k)
			n++
		}
	}
	for k, t := range s.refreshToks {
		if t.Expired(now) {
			delete(s.refreshToks, k)
			n++
		}
	}
	return n, nil
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.PassHash = slices.Clone(u.PassHash)
	if u.Scopes != nil {
		c.Scopes = make(map[string]models.Scope, len(u.Scopes))
		for k, v := range u.Scopes {
			c.Scopes[k] = slices.Clone(v)
		}
	}
	return &c
}
