package view

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"github.com/datainovate/labconsole/internal/rbac"
	"github.com/datainovate/labconsole/internal/shared"
	"github.com/datainovate/labconsole/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
	policy    rbac.ControlPolicy
	csrf      *shared.CSRFManager
	navigator Navigator
}

// Navigator builds the sidebar for the current principal.
type Navigator func(caps rbac.Capabilities, currentPath string) []NavItem

// Options configures an Engine.
type Options struct {
	Policy    rbac.ControlPolicy
	CSRF      *shared.CSRFManager
	Navigator Navigator
}

// NavItem is one sidebar entry. Children are only set on groups.
type NavItem struct {
	Label    string
	Path     string
	Active   bool
	Children []NavItem
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Access      rbac.Capabilities
	Nav         []NavItem
	Data        any

	policy rbac.ControlPolicy
}

// Can reports whether the current principal satisfies any of the given
// permission specs. A trailing "." marks a module prefix.
func (d TemplateData) Can(specs ...string) bool {
	return rbac.IsAllowed(d.Access, parseSpecs(specs)...)
}

// CanModule reports whether the principal holds any permission of module.
func (d TemplateData) CanModule(module string) bool {
	return rbac.IsAllowed(d.Access, rbac.Module(module))
}

// Control evaluates a control-level gate under the engine policy.
func (d TemplateData) Control(specs ...string) rbac.ControlState {
	return rbac.Control(d.Access, d.policy, parseSpecs(specs)...)
}

// UserName returns the display name of the principal, if any.
func (d TemplateData) UserName() string {
	p := d.Access.Principal()
	if p == nil {
		return ""
	}
	if p.Name != "" {
		return p.Name
	}
	return p.Email
}

func parseSpecs(specs []string) []rbac.Requirement {
	reqs := make([]rbac.Requirement, 0, len(specs))
	for _, spec := range specs {
		reqs = append(reqs, rbac.ParseRequirement(spec))
	}
	return reqs
}

// NewEngine parses the embedded templates.
func NewEngine(opts Options) (*Engine, error) {
	return newEngine(web.Templates, opts)
}

func newEngine(fsys fs.FS, opts Options) (*Engine, error) {
	funcMap := template.FuncMap{
		"join": strings.Join,
		"title": func(s string) string {
			if s == "" {
				return s
			}
			return strings.ToUpper(s[:1]) + s[1:]
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(fsys, "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	if opts.Policy == "" {
		opts.Policy = rbac.ControlHide
	}
	return &Engine{templates: tpl, policy: opts.Policy, csrf: opts.CSRF, navigator: opts.Navigator}, nil
}

// Policy returns the control policy applied by Control.
func (e *Engine) Policy() rbac.ControlPolicy {
	return e.policy
}

// Prepare fills the request-scoped parts of TemplateData: CSRF token, the
// pending flash, capabilities and the sidebar.
func (e *Engine) Prepare(r *http.Request, title string, data any) TemplateData {
	ctx := r.Context()
	sess := shared.SessionFromContext(ctx)
	td := TemplateData{
		Title:       title,
		CurrentPath: r.URL.Path,
		Access:      rbac.FromContext(ctx),
		Flash:       shared.PopFlash(ctx),
		Data:        data,
	}
	if e.csrf != nil {
		td.CSRFToken = e.csrf.EnsureToken(sess)
	}
	if e.navigator != nil {
		td.Nav = e.navigator(td.Access, td.CurrentPath)
	}
	return td
}

// RenderPage prepares TemplateData for r and renders name.
func (e *Engine) RenderPage(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) error {
	return e.Render(w, status, name, e.Prepare(r, title, data))
}

// Render executes a named template with TemplateData and writes status. The
// page is rendered to a buffer first so that a template error never leaves
// a half-written protected page.
func (e *Engine) Render(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	data.policy = e.policy
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
