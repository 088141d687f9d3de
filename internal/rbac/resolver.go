package rbac

import (
	"context"
	"net/http"
	"sync"

	"github.com/datainovate/labconsole/internal/shared"
)

// Resolver derives capabilities from the Store. It is the only code path
// that turns stored session data into a permission set.
type Resolver struct {
	store *Store
}

// NewResolver constructs a Resolver reading from store.
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve reads the storage and flattens the stored principal. An absent
// or unreadable session yields the empty set.
func (r *Resolver) Resolve(st Storage) Capabilities {
	principal, _, ok := r.store.Read(st)
	if !ok {
		return Capabilities{}
	}
	return Resolve(principal)
}

type accessContextKey struct{}

// access memoizes the resolved set for one storage, keyed on its revision so
// that any Persist or Clear invalidates it.
type access struct {
	resolver *Resolver
	storage  Storage

	mu       sync.Mutex
	resolved bool
	revision uint64
	caps     Capabilities
	token    string
}

func (a *access) current() (Capabilities, string) {
	if a == nil || a.storage == nil {
		return Capabilities{}, ""
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	rev := a.storage.Revision()
	if a.resolved && rev == a.revision {
		return a.caps, a.token
	}
	principal, token, ok := a.resolver.store.Read(a.storage)
	if ok {
		a.caps, a.token = Resolve(principal), token
	} else {
		a.caps, a.token = Capabilities{}, ""
	}
	a.resolved = true
	a.revision = rev
	return a.caps, a.token
}

// WithAccess binds storage to the resolver for the lifetime of ctx.
func (r *Resolver) WithAccess(ctx context.Context, st Storage) context.Context {
	return context.WithValue(ctx, accessContextKey{}, &access{resolver: r, storage: st})
}

// Middleware publishes the request session to FromContext consumers.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var st Storage
		if sess := shared.SessionFromContext(req.Context()); sess != nil {
			st = sess
		}
		next.ServeHTTP(w, req.WithContext(r.WithAccess(req.Context(), st)))
	})
}

// FromContext returns the capabilities of the current request. It is empty
// before login or when no resolver is bound.
func FromContext(ctx context.Context) Capabilities {
	a, _ := ctx.Value(accessContextKey{}).(*access)
	caps, _ := a.current()
	return caps
}

// BearerToken returns the token persisted alongside the current principal.
func BearerToken(ctx context.Context) string {
	a, _ := ctx.Value(accessContextKey{}).(*access)
	_, token := a.current()
	return token
}
