package domain

import "time"

// Status is the lifecycle state of a pending phone-number change.
type Status string

const (
	// StatusActive: an OTP has been issued and may still be verified.
	StatusActive Status = "ACTIVE"
	// StatusConsumed: the OTP was verified and the user's phone number updated.
	StatusConsumed Status = "CONSUMED"
	// StatusLocked: too many wrong codes were submitted; a new request is required.
	StatusLocked Status = "LOCKED"
)

// Change is the single outstanding phone-number change of a user (otp_phone_number_change).
// OTPHash is a bcrypt hash; the plaintext code is never stored.
type Change struct {
	ID       string
	UserID   string
	OldPhone string
	NewPhone string
	OTPHash  string
	Status   Status
	Attempts int
	// MaxAttempts is the number of wrong codes that locks the change; 0 disables lockout.
	MaxAttempts int
	IssuedAt    time.Time
	ExpiresAt   time.Time
	UpdatedAt   time.Time
}

// Verifiable reports whether the change can still be completed by submitting an OTP.
func (c *Change) Verifiable() bool {
	return c != nil && c.Status == StatusActive
}

// Expired reports whether the OTP has passed its expiry at time now.
func (c *Change) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}
