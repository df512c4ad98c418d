package domain

import "time"

// AuditLog represents an audit event. UserID is empty for unauthenticated callers.
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
