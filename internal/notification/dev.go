package notification

import (
	"context"
	"time"

	"github.com/zackweld/crAPI/internal/devotp"
)

// DevStoreSender implements Sender for dev OTP mode: instead of emailing, it keeps the code in the
// dev store where the owning user can read it back. Never wire it in production.
type DevStoreSender struct {
	store devotp.Store
	ttl   time.Duration
}

// NewDevStoreSender returns a sender that writes codes to store. ttl bounds how long a code is readable
// when the job carries no expiry.
func NewDevStoreSender(store devotp.Store, ttl time.Duration) *DevStoreSender {
	return &DevStoreSender{store: store, ttl: ttl}
}

// SendOTP stores the job's code keyed by user id.
func (s *DevStoreSender) SendOTP(ctx context.Context, job OTPJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	expiresAt := job.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = time.Now().UTC().Add(s.ttl)
	}
	s.store.Put(ctx, job.UserID, job.OTP, expiresAt)
	return nil
}
