package models

import "time"

// Client is a registered third-party application.
// Secret is kept for completeness; the flow never checks it.
type Client struct {
	ID          string    `json:"client_id" db:"client_id"`
	RedirectURI string    `json:"redirect_uri" db:"redirect_uri"`
	Secret      string    `json:"-" db:"secret"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
