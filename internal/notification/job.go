// Package notification delivers phone-change OTPs to users: directly through the email API,
// through a Kafka topic drained by the worker, or into the dev OTP store.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidJob is returned when a job is missing its recipient or code.
var ErrInvalidJob = errors.New("notification: job requires user_id, email and otp")

// OTPJob is one OTP delivery. It is the Kafka message payload on the notification topic.
type OTPJob struct {
	RequestID string    `json:"request_id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	OTP       string    `json:"otp"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks that the job can be delivered.
func (j OTPJob) Validate() error {
	if j.UserID == "" || j.Email == "" || j.OTP == "" {
		return ErrInvalidJob
	}
	return nil
}

// Sender delivers an OTP job. Implementations must not log the OTP.
type Sender interface {
	SendOTP(ctx context.Context, job OTPJob) error
}

// DecodeJob parses a Kafka message value into a validated job.
func DecodeJob(payload []byte) (OTPJob, error) {
	var j OTPJob
	if err := json.Unmarshal(payload, &j); err != nil {
		return OTPJob{}, fmt.Errorf("notification: decode job: %w", err)
	}
	if err := j.Validate(); err != nil {
		return OTPJob{}, err
	}
	return j, nil
}
