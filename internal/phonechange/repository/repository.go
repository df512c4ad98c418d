package repository

import (
	"context"
	"errors"
	"time"

	"github.com/zackweld/crAPI/internal/phonechange/domain"
	userrepo "github.com/zackweld/crAPI/internal/user/repository"
)

var (
	// ErrNotActive is returned when a change is no longer ACTIVE (consumed, locked, replaced or deleted).
	ErrNotActive = errors.New("phone change is not active")
	// ErrPhoneTaken is returned by Complete when the new number was registered to another user in the meantime.
	ErrPhoneTaken = userrepo.ErrPhoneTaken
	// ErrUserNotFound is returned by Complete when the owning user no longer exists.
	ErrUserNotFound = errors.New("user not found")
)

// Repository defines persistence for pending phone-number changes. A user has at most one row.
type Repository interface {
	// Upsert creates the user's pending change or overwrites the existing one (new OTP, attempts reset,
	// status ACTIVE). The stored row id is written back to c.ID.
	Upsert(ctx context.Context, c *domain.Change) error
	// GetByUser returns the user's change in any status, or nil if none exists.
	GetByUser(ctx context.Context, userID string) (*domain.Change, error)
	// RecordFailedAttempt increments attempts on an ACTIVE change and locks it once attempts reach
	// its max. Returns the updated change, or ErrNotActive if the row is no longer ACTIVE.
	RecordFailedAttempt(ctx context.Context, id string) (*domain.Change, error)
	// Complete atomically marks the ACTIVE change CONSUMED and sets the user's phone to its new number.
	Complete(ctx context.Context, c *domain.Change) error
	// PurgeStale deletes changes that finished (CONSUMED, LOCKED) or expired before cutoff.
	PurgeStale(ctx context.Context, cutoff time.Time) (int64, error)
}
