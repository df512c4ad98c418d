package domain

import (
	"errors"
	"time"
)

// User is the identity-service user. Phone is unique across users and changes only through
// a verified phone-number change.
type User struct {
	ID        string
	Email     string
	Name      string
	Phone     string
	Status    UserStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if len(u.Phone) > 15 {
		return errors.New("phone must be at most 15 characters")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}
