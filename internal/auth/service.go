package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/datainovate/labconsole/internal/backend"
	"github.com/datainovate/labconsole/internal/rbac"
	"github.com/datainovate/labconsole/internal/shared"
)

// Authenticator is the backend surface used by the login flow.
type Authenticator interface {
	Login(ctx context.Context, creds backend.Credentials) (*backend.LoginResult, error)
	Logout(ctx context.Context, token string) error
}

// SessionRenewer issues a fresh identifier for a session that is about to
// carry a principal.
type SessionRenewer interface {
	Renew(sess *shared.Session) string
}

// Service wraps the login and logout rules.
type Service struct {
	backend  Authenticator
	sessions SessionRenewer
	store    *rbac.Store
	recorder SessionRecorder
	logger   *slog.Logger
	ttl      time.Duration
	now      func() time.Time
}

// NewService constructs a new Service. A nil recorder disables auditing and
// a nil renewer keeps session IDs across login.
func NewService(client Authenticator, sessions SessionRenewer, store *rbac.Store, recorder SessionRecorder, ttl time.Duration, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: client, sessions: sessions, store: store, recorder: recorder, logger: logger, ttl: ttl, now: time.Now}
}

// Login exchanges credentials with the backend and persists the principal
// and token into st. A *shared.Session is moved to a fresh ID first, and the
// audit record carries that ID. On a backend failure st is left untouched.
func (s *Service) Login(ctx context.Context, st rbac.Storage, meta SessionMeta, creds backend.Credentials) (*rbac.Principal, error) {
	result, err := s.backend.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	if sess, ok := st.(*shared.Session); ok && s.sessions != nil {
		meta.SessionID = s.sessions.Renew(sess)
	}
	if err := s.store.Persist(st, result.Principal, result.Token); err != nil {
		return nil, err
	}

	now := s.now()
	rec := SessionRecord{
		SessionID:   meta.SessionID,
		PrincipalID: result.Principal.ID,
		Email:       result.Principal.Email,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
		IP:          meta.IP,
		UserAgent:   meta.UserAgent,
	}
	if meta.SessionID != "" {
		if err := s.recorder.RecordLogin(ctx, rec); err != nil {
			s.logger.Warn("record login", slog.Any("error", err))
		}
	}
	return result.Principal, nil
}

// Logout revokes the token on the backend and clears both session entries.
// Backend failures are logged; the local logout always happens.
func (s *Service) Logout(ctx context.Context, st rbac.Storage, sessionID string) {
	if _, token, ok := s.store.Read(st); ok {
		if err := s.backend.Logout(ctx, token); err != nil {
			s.logger.Warn("backend logout", slog.Any("error", err))
		}
	}
	s.store.Clear(st)
	if sessionID != "" {
		if err := s.recorder.RecordLogout(ctx, sessionID, s.now()); err != nil {
			s.logger.Warn("record logout", slog.Any("error", err))
		}
	}
}
