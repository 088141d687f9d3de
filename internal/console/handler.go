package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/datainovate/labconsole/internal/backend"
	"github.com/datainovate/labconsole/internal/platform/httpx"
	"github.com/datainovate/labconsole/internal/rbac"
	"github.com/datainovate/labconsole/internal/shared"
	"github.com/datainovate/labconsole/internal/view"
)

// Backend is the subset of the REST client used by console screens.
type Backend interface {
	List(ctx context.Context, token, path string) ([]backend.Record, error)
	Get(ctx context.Context, token, path string) (backend.Record, error)
	Create(ctx context.Context, token, path string, body map[string]any) error
	Update(ctx context.Context, token, path string, body map[string]any) error
	Delete(ctx context.Context, token, path string) error
}

// Handler serves the dashboard and every registered module.
type Handler struct {
	logger    *slog.Logger
	backend   Backend
	templates *view.Engine
	store     *rbac.Store
	rbac      rbac.Middleware
	registry  *Registry
	validate  *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, client Backend, templates *view.Engine, store *rbac.Store, mw rbac.Middleware, registry *Registry) *Handler {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		backend:   client,
		templates: templates,
		store:     store,
		rbac:      mw,
		registry:  registry,
		validate:  validator.New(),
	}
}

// MountRoutes registers the dashboard and module routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAuth).Get("/", h.dashboard)
	for _, m := range h.registry.Modules() {
		r.Route(m.Path(), func(r chi.Router) {
			r.Use(h.rbac.RequireAny(m.Gate()))
			r.Get("/", h.list(m))
			if m.Supports(shared.ActionCreate) {
				r.Group(func(r chi.Router) {
					r.Use(h.rbac.RequireAny(rbac.Exact(m.Perm(shared.ActionCreate))))
					r.Get("/new", h.newForm(m))
					r.Post("/", h.create(m))
				})
			}
			if m.Supports(shared.ActionEdit) {
				r.Group(func(r chi.Router) {
					r.Use(h.rbac.RequireAny(rbac.Exact(m.Perm(shared.ActionEdit))))
					r.Get("/{id}/edit", h.editForm(m))
					r.Post("/{id}", h.update(m))
				})
			}
			if m.Supports(shared.ActionDelete) {
				r.With(h.rbac.RequireAny(rbac.Exact(m.Perm(shared.ActionDelete)))).Post("/{id}/delete", h.remove(m))
			}
		})
	}
}

// Stat is one dashboard counter. Available is false when the backend could
// not be read.
type Stat struct {
	Label     string
	Path      string
	Count     int
	Available bool
}

type dashboardData struct {
	Roles []string
	Stats []Stat
}

var dashboardStats = []struct {
	module string
	label  string
}{
	{"doctors", "Total Doctors"},
	{"tests", "Total Tests"},
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caps := rbac.FromContext(ctx)
	token := rbac.BearerToken(ctx)

	stats := make([]Stat, 0, len(dashboardStats))
	modules := make([]Module, 0, len(dashboardStats))
	for _, entry := range dashboardStats {
		m, ok := h.registry.Lookup(entry.module)
		if !ok || !rbac.IsAllowed(caps, m.Gate()) {
			continue
		}
		stats = append(stats, Stat{Label: entry.label, Path: m.Path()})
		modules = append(modules, m)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, m := range modules {
		i, m := i, m
		g.Go(func() error {
			records, err := h.backend.List(gctx, token, m.Endpoint)
			if err != nil {
				if errors.Is(err, backend.ErrUnauthorized) {
					return err
				}
				h.logger.Warn("dashboard count", slog.String("module", m.Key), slog.Any("error", err))
				return nil
			}
			stats[i].Count, stats[i].Available = len(records), true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		h.fail(w, r, Module{Key: "dashboard", Title: "Dashboard"}, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/home.html", "Dashboard", dashboardData{Roles: caps.Principal().RoleNames(), Stats: stats})
}

// Row is one rendered list row.
type Row struct {
	ID    string
	Cells []string
}

type listPage struct {
	Module Module
	Rows   []Row
}

type formPage struct {
	Module  Module
	Action  string
	ID      string
	Editing bool
	Values  map[string]string
	Errors  map[string]string
	Granted map[string]bool
}

func newFormPage(m Module, editing bool) formPage {
	return formPage{
		Module:  m,
		Editing: editing,
		Values:  map[string]string{},
		Errors:  map[string]string{},
		Granted: map[string]bool{},
	}
}

// Shows reports whether f belongs on this form.
func (p formPage) Shows(f Field) bool {
	return !(f.CreateOnly && p.Editing)
}

// PermissionCell is one checkbox of the permission grid.
type PermissionCell struct {
	Name    string
	Checked bool
}

// PermissionRow is one module of the permission grid, in action order.
type PermissionRow struct {
	Module string
	Cells  []PermissionCell
}

// PermissionActions returns the grid header.
func (p formPage) PermissionActions() []string {
	return shared.Actions()
}

// PermissionGrid lays the permission catalogue out as module rows.
func (p formPage) PermissionGrid() []PermissionRow {
	modules := shared.Modules()
	rows := make([]PermissionRow, 0, len(modules))
	for _, module := range modules {
		row := PermissionRow{Module: module}
		for _, name := range shared.ModuleScopes(module) {
			row.Cells = append(row.Cells, PermissionCell{Name: name, Checked: p.Granted[name]})
		}
		rows = append(rows, row)
	}
	return rows
}

func (h *Handler) list(m Module) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := h.backend.List(r.Context(), rbac.BearerToken(r.Context()), m.Endpoint)
		if err != nil {
			h.fail(w, r, m, err)
			return
		}
		rows := make([]Row, 0, len(records))
		for _, rec := range records {
			row := Row{ID: rec.ID(), Cells: make([]string, 0, len(m.Columns))}
			for _, col := range m.Columns {
				row.Cells = append(row.Cells, rec.Text(col.Key))
			}
			rows = append(rows, row)
		}
		h.render(w, r, http.StatusOK, "pages/resource_list.html", m.Title, listPage{Module: m, Rows: rows})
	}
}

func (h *Handler) newForm(m Module) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := newFormPage(m, false)
		page.Action = m.Path()
		h.render(w, r, http.StatusOK, "pages/resource_form.html", "New "+m.Title, page)
	}
}

func (h *Handler) editForm(m Module) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rec, err := h.record(r.Context(), m, id)
		if err != nil {
			h.fail(w, r, m, err)
			return
		}
		page := newFormPage(m, true)
		page.Action, page.ID = m.RecordPath(id), id
		for _, f := range m.Fields {
			switch f.Kind {
			case FieldPassword:
				// never echoed
			case FieldPermissions:
				for _, name := range rec.Names(f.Name) {
					page.Granted[name] = true
				}
			default:
				page.Values[f.Name] = rec.Text(f.Name)
			}
		}
		h.render(w, r, http.StatusOK, "pages/resource_form.html", "Edit "+m.Title, page)
	}
}

func (h *Handler) create(m Module) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, page, ok := h.bind(r, m, false)
		if !ok {
			page.Action = m.Path()
			h.render(w, r, http.StatusBadRequest, "pages/resource_form.html", "New "+m.Title, page)
			return
		}
		if err := h.backend.Create(r.Context(), rbac.BearerToken(r.Context()), m.createEndpoint(), body); err != nil {
			h.fail(w, r, m, err)
			return
		}
		h.redirectWithFlash(w, r, m.Path(), "success", m.Title+" created")
	}
}

func (h *Handler) update(m Module) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		body, page, ok := h.bind(r, m, true)
		if !ok {
			page.Action, page.ID = m.RecordPath(id), id
			h.render(w, r, http.StatusBadRequest, "pages/resource_form.html", "Edit "+m.Title, page)
			return
		}
		if err := h.backend.Update(r.Context(), rbac.BearerToken(r.Context()), m.updateEndpoint(id), body); err != nil {
			h.fail(w, r, m, err)
			return
		}
		h.redirectWithFlash(w, r, m.Path(), "success", m.Title+" updated")
	}
}

func (h *Handler) remove(m Module) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := h.backend.Delete(r.Context(), rbac.BearerToken(r.Context()), m.itemEndpoint(id)); err != nil {
			h.fail(w, r, m, err)
			return
		}
		h.redirectWithFlash(w, r, m.Path(), "success", m.Title+" deleted")
	}
}

// record loads one record for the edit form.
func (h *Handler) record(ctx context.Context, m Module, id string) (backend.Record, error) {
	token := rbac.BearerToken(ctx)
	if !m.ReadFromList {
		return h.backend.Get(ctx, token, m.itemEndpoint(id))
	}
	records, err := h.backend.List(ctx, token, m.Endpoint)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.ID() == id {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%s %s: %w", m.Key, id, httpx.ErrNotFound)
}

// bind reads the posted form into a backend payload. Validation failures are
// returned on the page for re-rendering.
func (h *Handler) bind(r *http.Request, m Module, editing bool) (map[string]any, formPage, bool) {
	page := newFormPage(m, editing)
	if err := r.ParseForm(); err != nil {
		page.Errors["general"] = "The form could not be read."
		return nil, page, false
	}
	body := make(map[string]any, len(m.Fields))
	for _, f := range m.Fields {
		if !page.Shows(f) {
			continue
		}
		switch f.Kind {
		case FieldCheckbox:
			body[f.Name] = strings.TrimSpace(r.PostFormValue(f.Name)) != ""
			continue
		case FieldPermissions:
			body[f.Name] = permissionPayload(r.PostForm[f.Name], page.Granted)
			continue
		}

		raw := r.PostFormValue(f.Name)
		if f.Kind != FieldPassword {
			raw = strings.TrimSpace(raw)
			page.Values[f.Name] = raw
		}
		if err := h.validate.Var(raw, validationTag(f)); err != nil {
			page.Errors[f.Name] = fieldMessage(f, err)
			continue
		}
		if raw == "" {
			continue
		}
		if f.Kind == FieldNumber {
			n, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				page.Errors[f.Name] = f.Label + " must be a number"
				continue
			}
			body[f.Name] = n
			continue
		}
		body[f.Name] = raw
	}
	return body, page, len(page.Errors) == 0
}

// permissionPayload turns the checked permission names into the
// module -> action -> granted map the backend expects. Names outside the
// catalogue are dropped; granted collects the accepted ones.
func permissionPayload(selected []string, granted map[string]bool) map[string]map[string]bool {
	checked := make(map[string]bool, len(selected))
	for _, name := range selected {
		checked[strings.TrimSpace(name)] = true
	}
	payload := make(map[string]map[string]bool)
	for _, module := range shared.Modules() {
		actions := make(map[string]bool, len(shared.Actions()))
		for _, action := range shared.Actions() {
			name := shared.Permission(module, action)
			actions[action] = checked[name]
			if checked[name] {
				granted[name] = true
			}
		}
		payload[module] = actions
	}
	return payload
}

func validationTag(f Field) string {
	tag := "omitempty"
	if f.Required {
		tag = "required"
	}
	if f.Kind == FieldEmail {
		tag += ",email"
	}
	if f.MinLen > 0 {
		tag += ",min=" + strconv.Itoa(f.MinLen)
	}
	if len(f.Options) > 0 {
		tag += ",oneof=" + strings.Join(f.Options, " ")
	}
	return tag
}

func fieldMessage(f Field, err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return f.Label + " is invalid"
	}
	switch verrs[0].Tag() {
	case "email":
		return f.Label + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %d characters", f.Label, f.MinLen)
	case "oneof":
		return f.Label + " must be one of " + strings.Join(f.Options, ", ")
	default:
		return f.Label + " is required"
	}
}

type errorPage struct {
	Message string
}

// fail maps a backend error onto the console. A rejected token signs the
// user out; the rest render an error page, or a problem document for JSON
// clients.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, m Module, err error) {
	if errors.Is(err, backend.ErrUnauthorized) {
		if sess := shared.SessionFromContext(r.Context()); sess != nil {
			h.store.Clear(sess)
		}
		if rbac.WantsJSON(r) {
			httpx.RespondError(w, err)
			return
		}
		h.redirectWithFlash(w, r, "/auth/login", "error", "Your session has expired. Please log in again.")
		return
	}
	if rbac.WantsJSON(r) {
		httpx.RespondError(w, err)
		return
	}
	status := httpx.StatusFor(err)
	message := "The laboratory service could not complete the request. Please try again."
	switch {
	case errors.Is(err, httpx.ErrNotFound):
		message = m.Title + " record not found."
	case errors.Is(err, httpx.ErrForbidden):
		message = "The laboratory service refused this action."
	case errors.Is(err, httpx.ErrValidation):
		var se *backend.StatusError
		if errors.As(err, &se) && se.Message != "" {
			message = se.Message
		}
	default:
		if status < http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		h.logger.Error("backend request", slog.String("module", m.Key), slog.Any("error", err))
	}
	h.render(w, r, status, "pages/error.html", m.Title, errorPage{Message: message})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	if err := h.templates.RenderPage(w, r, status, name, title, data); err != nil {
		h.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	shared.Flash(r.Context(), kind, message)
	http.Redirect(w, r, location, http.StatusSeeOther)
}
