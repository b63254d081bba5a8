package models

import "time"

// Projectable user attributes. Nothing outside this set is ever released to a client.
const (
	AttrID       = "id"
	AttrUsername = "username"
	AttrEmail    = "email"
)

// User's model
type User struct {
	ID        string           `json:"id" db:"id"`
	Username  string           `json:"username" db:"username"`
	Email     string           `json:"email" db:"email"`
	PassHash  []byte           `json:"-" db:"pass_hash"`
	Scopes    map[string]Scope `json:"scopes" db:"-"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// Attribute returns the value of a projectable attribute.
// Unknown names and empty values report false.
func (u *User) Attribute(name string) (string, bool) {
	var v string
	switch name {
	case AttrID:
		v = u.ID
	case AttrUsername:
		v = u.Username
	case AttrEmail:
		v = u.Email
	default:
		return "", false
	}
	return v, v != ""
}

// GrantedScope returns the scope the user granted to clientID, empty if none.
func (u *User) GrantedScope(clientID string) Scope {
	if u.Scopes == nil {
		return nil
	}
	return u.Scopes[clientID]
}
