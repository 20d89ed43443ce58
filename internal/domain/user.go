package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is an authenticated account holder. Identity is carried everywhere as
// the user's UUID; the session token's `sub` claim holds the same value.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      *string   `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayName returns the user's name, falling back to their email address.
func (u *User) DisplayName() string {
	if u.Name != nil && *u.Name != "" {
		return *u.Name
	}
	return u.Email
}
