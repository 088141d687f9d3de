package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRecorder writes the login audit trail to PostgreSQL.
type PGRecorder struct {
	pool *pgxpool.Pool
}

// NewPGRecorder constructs a PostgreSQL recorder.
func NewPGRecorder(pool *pgxpool.Pool) *PGRecorder {
	return &PGRecorder{pool: pool}
}

// RecordLogin inserts an auth_sessions row.
func (r *PGRecorder) RecordLogin(ctx context.Context, rec SessionRecord) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO auth_sessions (id, principal_id, email, created_at, expires_at, ip, user_agent)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET principal_id = EXCLUDED.principal_id, email = EXCLUDED.email,
	created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at, revoked_at = NULL`,
		rec.SessionID,
		rec.PrincipalID,
		rec.Email,
		pgtype.Timestamptz{Time: rec.CreatedAt.UTC(), Valid: true},
		pgtype.Timestamptz{Time: rec.ExpiresAt.UTC(), Valid: true},
		pgtype.Text{String: rec.IP, Valid: rec.IP != ""},
		pgtype.Text{String: rec.UserAgent, Valid: rec.UserAgent != ""},
	)
	return err
}

// RecordLogout stamps the revocation time on an open session row.
func (r *PGRecorder) RecordLogout(ctx context.Context, sessionID string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE auth_sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`,
		sessionID, pgtype.Timestamptz{Time: at.UTC(), Valid: true})
	return err
}

var _ SessionRecorder = (*PGRecorder)(nil)
