package auth

import (
	"context"
	"time"
)

// SessionRecord is the audit row written for each successful login.
type SessionRecord struct {
	SessionID   string
	PrincipalID int64
	Email       string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	IP          string
	UserAgent   string
}

// SessionMeta carries request details recorded alongside a login.
type SessionMeta struct {
	SessionID string
	IP        string
	UserAgent string
}

// SessionRecorder keeps the login audit trail.
type SessionRecorder interface {
	RecordLogin(ctx context.Context, rec SessionRecord) error
	RecordLogout(ctx context.Context, sessionID string, at time.Time) error
}

// NopRecorder discards audit records. It is used when no database is
// configured.
type NopRecorder struct{}

// RecordLogin implements SessionRecorder.
func (NopRecorder) RecordLogin(context.Context, SessionRecord) error { return nil }

// RecordLogout implements SessionRecorder.
func (NopRecorder) RecordLogout(context.Context, string, time.Time) error { return nil }

var _ SessionRecorder = NopRecorder{}
