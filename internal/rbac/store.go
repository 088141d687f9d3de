package rbac

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// PrincipalKey holds the serialized principal.
	PrincipalKey = "user"
	// TokenKey holds the bearer token.
	TokenKey = "token"
)

var (
	// ErrNoPrincipal is returned when persisting without a usable principal.
	ErrNoPrincipal = errors.New("rbac: principal required")
	// ErrNoToken is returned when persisting without a bearer token.
	ErrNoToken = errors.New("rbac: token required")
	// ErrNoStorage is returned when no storage medium is available.
	ErrNoStorage = errors.New("rbac: storage unavailable")
)

// Storage is the durable medium holding independent string entries.
// *shared.Session satisfies it.
type Storage interface {
	Get(key string) string
	Set(key, value string)
	Delete(key string)
	Revision() uint64
}

// Store keeps custody of the authenticated principal and its bearer token.
// It is the only writer of PrincipalKey and TokenKey.
type Store struct {
	now func() time.Time
}

// NewStore constructs a Store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Persist replaces the stored principal and token wholesale.
func (s *Store) Persist(st Storage, principal *Principal, token string) error {
	if st == nil {
		return ErrNoStorage
	}
	if principal == nil || principal.ID == 0 {
		return ErrNoPrincipal
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrNoToken
	}
	data, err := json.Marshal(principal)
	if err != nil {
		return fmt.Errorf("rbac: encode principal: %w", err)
	}
	st.Set(PrincipalKey, string(data))
	st.Set(TokenKey, token)
	return nil
}

// Read returns the persisted principal and token. Both entries must be
// present and well formed, otherwise the session is reported absent.
func (s *Store) Read(st Storage) (*Principal, string, bool) {
	if st == nil {
		return nil, "", false
	}
	token := strings.TrimSpace(st.Get(TokenKey))
	raw := st.Get(PrincipalKey)
	if token == "" || raw == "" {
		return nil, "", false
	}
	if s.tokenExpired(token) {
		return nil, "", false
	}
	var principal Principal
	if err := json.Unmarshal([]byte(raw), &principal); err != nil {
		return nil, "", false
	}
	if principal.ID == 0 {
		return nil, "", false
	}
	return &principal, token, true
}

// Clear removes the principal and token.
func (s *Store) Clear(st Storage) {
	if st == nil {
		return
	}
	st.Delete(PrincipalKey)
	st.Delete(TokenKey)
}

// tokenExpired reports whether a JWT-shaped token carries an exp claim in the
// past. Opaque tokens never expire locally; the backend decides.
func (s *Store) tokenExpired(token string) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !s.now().Before(claims.ExpiresAt.Time)
}
