package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/datainovate/labconsole/internal/backend"
	"github.com/datainovate/labconsole/internal/rbac"
	"github.com/datainovate/labconsole/internal/shared"
	"github.com/datainovate/labconsole/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on provided router. loginLimit, when
// set, wraps the credential POST.
func (h *Handler) MountRoutes(r chi.Router, loginLimit func(http.Handler) http.Handler) {
	r.Get("/login", h.showLogin)
	if loginLimit != nil {
		r.With(loginLimit).Post("/login", h.handleLogin)
	} else {
		r.Post("/login", h.handleLogin)
	}
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type loginPageData struct {
	Form   loginForm
	Next   string
	Errors map[string]string
}

var fieldMessages = map[string]map[string]string{
	"Email":    {"required": "Please enter your email!", "email": "Please enter a valid email!"},
	"Password": {"required": "Please enter your password!"},
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	next := SafeNext(r.URL.Query().Get("next"))
	if rbac.FromContext(r.Context()).Authenticated() {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, loginPageData{Next: next, Errors: map[string]string{}})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	next := SafeNext(r.PostFormValue("next"))
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				errs[fieldErr.Field()] = fieldMessages[fieldErr.Field()][fieldErr.Tag()]
			}
		}
	}

	status := http.StatusBadRequest
	if len(errs) == 0 {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil {
			h.logger.Error("session missing during login")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		meta := SessionMeta{SessionID: sess.ID, IP: r.RemoteAddr, UserAgent: r.UserAgent()}
		principal, err := h.service.Login(r.Context(), sess, meta, backend.Credentials{Email: form.Email, Password: form.Password})
		if err == nil {
			h.logger.Info("login", slog.Int64("principal", principal.ID))
			shared.Flash(r.Context(), "success", "Welcome back")
			http.Redirect(w, r, next, http.StatusSeeOther)
			return
		}
		if errors.Is(err, shared.ErrInvalidCredentials) {
			errs["general"] = shared.UserSafeMessage(err)
		} else {
			h.logger.Error("login", slog.Any("error", err))
			errs["general"] = shared.UserSafeMessage(shared.ErrInvalidCredentials)
			status = http.StatusBadGateway
		}
	}

	form.Password = ""
	h.render(w, r, status, loginPageData{Form: form, Next: next, Errors: errs})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.service.Logout(r.Context(), sess, sess.ID)
		shared.Flash(r.Context(), "success", "You have been logged out")
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, data loginPageData) {
	if err := h.templates.RenderPage(w, r, status, "pages/login.html", "Login", data); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
	}
}

// SafeNext returns target when it is a local absolute path, "/" otherwise.
func SafeNext(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	u, err := url.Parse(target)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}
	if strings.HasPrefix(u.Path, "/auth/") {
		return "/"
	}
	return target
}
