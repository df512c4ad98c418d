// Package engine decides whether a phone-number change may proceed and with which OTP limits.
package engine

import (
	"context"
	"time"
)

// Input describes one phone-change request as seen by the policy.
type Input struct {
	UserID       string
	UserStatus   string
	CurrentPhone string
	OldNumber    string
	NewNumber    string
	ClientIP     string
}

// Decision is the policy outcome. When Allow is false, Reason explains the denial.
type Decision struct {
	Allow       bool
	Reason      string
	OTPTTL      time.Duration
	MaxAttempts int
}

// Defaults are the configured OTP limits handed to the policy and used when evaluation fails.
type Defaults struct {
	OTPTTL      time.Duration
	MaxAttempts int
}

// Evaluator evaluates the phone-change policy.
type Evaluator interface {
	EvaluatePhoneChange(ctx context.Context, in Input) (Decision, error)
}
