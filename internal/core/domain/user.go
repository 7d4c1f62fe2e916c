package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is a chat participant.
//
// Identity is the ID alone: two User values with the same ID are the same
// user even if Address has since been edited.
type User struct {
	// ID is a random 128-bit identifier, immutable after creation.
	ID uuid.UUID `json:"id"`

	// Address is the human-readable public handle.
	Address string `json:"address"`

	// CreatedAt is the creation timestamp (immutable).
	CreatedAt time.Time `json:"created_at"`
}

// NewUser creates a user with a fresh random ID stamped with the current time.
func NewUser(address string) *User {
	return &User{
		ID:        uuid.New(),
		Address:   address,
		CreatedAt: time.Now(),
	}
}

// Equal reports whether both values identify the same user.
func (u *User) Equal(other *User) bool {
	if u == nil || other == nil {
		return u == other
	}
	return u.ID == other.ID
}

// Clone returns a copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
