package models

import "time"

// AuthorizationCode is a single-use credential bound to a user and a client.
type AuthorizationCode struct {
	Code      string    `json:"code" db:"code"`
	UserID    string    `json:"user_id" db:"user_id"`
	ClientID  string    `json:"client_id" db:"client_id"`
	IssuedAt  time.Time `json:"issued_at" db:"issued_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

// Expired reports whether the code is past its TTL at now.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
