package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/datainovate/labconsole/internal/auth"
	"github.com/datainovate/labconsole/internal/console"
	"github.com/datainovate/labconsole/internal/observability"
	"github.com/datainovate/labconsole/internal/platform/httpx"
	"github.com/datainovate/labconsole/internal/rbac"
	"github.com/datainovate/labconsole/internal/shared"
	"github.com/datainovate/labconsole/internal/view"
	"github.com/datainovate/labconsole/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Resolver       *rbac.Resolver
	AuthHandler    *auth.Handler
	ConsoleHandler *console.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with console defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	mwCfg := MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Resolver:       params.Resolver,
		Metrics:        params.Metrics,
	}
	for _, mw := range MiddlewareStack(mwCfg) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	r.Group(func(r chi.Router) {
		for _, mw := range SessionStack(mwCfg) {
			r.Use(mw)
		}
		r.Use(chimw.Logger)

		r.Get("/api/session", func(w http.ResponseWriter, r *http.Request) {
			httpx.JSON(w, http.StatusOK, rbac.FromContext(r.Context()))
		})
		r.Route("/auth", func(r chi.Router) {
			params.AuthHandler.MountRoutes(r, LoginLimiter(params.Config))
		})
		params.ConsoleHandler.MountRoutes(r)
	})

	return r
}

// DeniedHandler renders the terminal access-denied page.
func DeniedHandler(logger *slog.Logger, templates *view.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := templates.RenderPage(w, r, http.StatusForbidden, "pages/denied.html", "Access Denied", nil); err != nil {
			logger.Error("render denied", slog.Any("error", err))
		}
	})
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
