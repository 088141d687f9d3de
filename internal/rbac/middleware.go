package rbac

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/datainovate/labconsole/internal/platform/httpx"
)

// Gate outcomes reported to a DecisionRecorder.
const (
	OutcomeAllowed         = "allowed"
	OutcomeDenied          = "denied"
	OutcomeUnauthenticated = "unauthenticated"
)

// DecisionRecorder observes route-level gate decisions.
type DecisionRecorder interface {
	ObserveDecision(gate, outcome string)
}

// Middleware wires route-level authorization for HTTP handlers. Capabilities
// come from FromContext, so Resolver.Middleware must run first.
type Middleware struct {
	Logger    *slog.Logger
	LoginPath string
	// Denied renders the terminal access-denied page. Nil writes a plain 403.
	Denied   http.Handler
	Recorder DecisionRecorder
}

// RequireAuth redirects to the login page when no principal is present.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !FromContext(r.Context()).Authenticated() {
			m.record("authenticated", OutcomeUnauthenticated)
			m.unauthenticated(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAny ensures the current principal satisfies at least one of the
// requirements. Authentication is checked before any permission.
func (m Middleware) RequireAny(reqs ...Requirement) func(http.Handler) http.Handler {
	label := Label(reqs...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caps := FromContext(r.Context())
			if !caps.Authenticated() {
				m.record(label, OutcomeUnauthenticated)
				m.unauthenticated(w, r)
				return
			}
			if !IsAllowed(caps, reqs...) {
				m.record(label, OutcomeDenied)
				if m.Logger != nil {
					m.Logger.Debug("access denied", slog.String("gate", label), slog.String("path", r.URL.Path))
				}
				m.denied(w, r)
				return
			}
			m.record(label, OutcomeAllowed)
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) unauthenticated(w http.ResponseWriter, r *http.Request) {
	if WantsJSON(r) {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	login := m.LoginPath
	if login == "" {
		login = "/auth/login"
	}
	target := login
	if r.Method == http.MethodGet {
		target += "?next=" + url.QueryEscape(r.URL.RequestURI())
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (m Middleware) denied(w http.ResponseWriter, r *http.Request) {
	if WantsJSON(r) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "access denied")
		return
	}
	if m.Denied == nil {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	m.Denied.ServeHTTP(w, r)
}

func (m Middleware) record(gate, outcome string) {
	if m.Recorder != nil {
		m.Recorder.ObserveDecision(gate, outcome)
	}
}

// WantsJSON reports whether the client expects a JSON response.
func WantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
