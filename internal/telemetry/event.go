// Package telemetry defines the lifecycle events emitted by the identity service and the
// best-effort plumbing to ship them.
package telemetry

import (
	"context"
	"time"
)

// Event types emitted by the phone-change workflow.
const (
	EventPhoneChangeRequested = "phone_change_requested"
	EventPhoneChangeVerified  = "phone_change_verified"
	EventPhoneChangeFailed    = "phone_change_failed"
)

// Event is one structured lifecycle event. Attributes must never carry OTPs.
type Event struct {
	Type       string
	UserID     string
	Source     string
	Attributes map[string]string
	CreatedAt  time.Time
}

// EventEmitter emits telemetry events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}
