package console

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datainovate/labconsole/internal/backend"
	"github.com/datainovate/labconsole/internal/rbac"
	"github.com/datainovate/labconsole/internal/shared"
	"github.com/datainovate/labconsole/internal/view"
)

type apiCall struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

type fakeAPI struct {
	mu     sync.Mutex
	calls  []apiCall
	status int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	call := apiCall{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization")}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&call.Body)
	}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	status := f.status
	f.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"message":"rejected"}`))
		return
	}
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/tests":
		_, _ = w.Write([]byte(`{"data":[{"id":5,"name":"CBC","category":{"name":"Hematology"},"price":1200}]}`))
	case r.Method == http.MethodGet && r.URL.Path == "/tests/5":
		_, _ = w.Write([]byte(`{"data":{"id":5,"name":"CBC","category_id":2,"price":1200}}`))
	case r.Method == http.MethodGet && r.URL.Path == "/doctors":
		_, _ = w.Write([]byte(`{"data":[{"id":1,"name":"Dr. Rahman"},{"id":2,"name":"Dr. Sultana"}]}`))
	case r.Method == http.MethodGet && r.URL.Path == "/roles":
		_, _ = w.Write([]byte(`{"data":[{"id":3,"name":"Lab Tech","permissions":[{"name":"tests.list"},{"name":"tests.edit"}]}]}`))
	case r.Method == http.MethodGet && r.URL.Path == "/users/4":
		_, _ = w.Write([]byte(`{"data":{"id":4,"name":"Nadia","email":"nadia@lab.test","role":"manager"}}`))
	default:
		_, _ = w.Write([]byte(`{"data":{}}`))
	}
}

func (f *fakeAPI) recorded() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]apiCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type fixture struct {
	router chi.Router
	api    *fakeAPI
	store  *rbac.Store
	res    *rbac.Resolver
}

func newFixture(t *testing.T, policy rbac.ControlPolicy) *fixture {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	reg := DefaultRegistry()
	csrf := shared.NewCSRFManager("secret")
	engine, err := view.NewEngine(view.Options{Policy: policy, CSRF: csrf, Navigator: reg.Navigator()})
	require.NoError(t, err)

	store := rbac.NewStore()
	mw := rbac.Middleware{Denied: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = engine.RenderPage(w, r, http.StatusForbidden, "pages/denied.html", "Access Denied", nil)
	})}
	h := NewHandler(nil, backend.NewClient(srv.URL, time.Second, nil), engine, store, mw, reg)

	r := chi.NewRouter()
	h.MountRoutes(r)
	return &fixture{router: r, api: api, store: store, res: rbac.NewResolver(store)}
}

func principal(perms ...string) *rbac.Principal {
	role := rbac.Role{ID: 2, Name: "Lab Tech"}
	for i, p := range perms {
		role.Permissions = append(role.Permissions, rbac.Permission{ID: int64(i + 1), Name: p})
	}
	return &rbac.Principal{ID: 7, Name: "Amina", Email: "amina@lab.test", Roles: []rbac.Role{role}}
}

func (f *fixture) session(t *testing.T, p *rbac.Principal) *shared.Session {
	t.Helper()
	sess := &shared.Session{ID: "s1"}
	if p != nil {
		require.NoError(t, f.store.Persist(sess, p, "tok-7"))
	}
	return sess
}

func (f *fixture) serve(sess *shared.Session, req *http.Request) *httptest.ResponseRecorder {
	ctx := shared.ContextWithSession(req.Context(), sess)
	ctx = f.res.WithAccess(ctx, sess)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestListRedirectsAnonymousToLogin(t *testing.T) {
	f := newFixture(t, rbac.ControlHide)
	rec := f.serve(f.session(t, nil), httptest.NewRequest(http.MethodGet, "/tests?page=2", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login?next=%2Ftests%3Fpage%3D2", rec.Header().Get("Location"))
	assert.Empty(t, f.api.recorded())
}

func TestLabTechSeesTestsWithEditOnly(t *testing.T) {
	f := newFixture(t, rbac.ControlHide)
	rec := f.serve(f.session(t, principal("tests.list", "tests.edit")), httptest.NewRequest(http.MethodGet, "/tests", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "CBC")
	assert.Contains(t, body, "Hematology")
	assert.Contains(t, body, `href="/tests/5/edit"`)
	assert.NotContains(t, body, "/tests/5/delete")
	assert.NotContains(t, body, "Add Tests")
	assert.NotContains(t, body, `href="/doctors"`)

	calls := f.api.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "Bearer tok-7", calls[0].Auth)
}

func TestDisablePolicyRendersInertControls(t *testing.T) {
	f := newFixture(t, rbac.ControlDisable)
	rec := f.serve(f.session(t, principal("tests.list", "tests.edit")), httptest.NewRequest(http.MethodGet, "/tests", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `action="/tests/5/delete"`)
	assert.Contains(t, body, `btn-danger" disabled`)
	assert.Contains(t, body, `aria-disabled="true">Add Tests`)
}

func TestModuleGateDeniesOtherModules(t *testing.T) {
	f := newFixture(t, rbac.ControlHide)
	sess := f.session(t, principal("tests.list", "tests.edit"))

	rec := f.serve(sess, httptest.NewRequest(http.MethodGet, "/doctors", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Access Denied")

	rec = f.serve(sess, httptest.NewRequest(http.MethodGet, "/tests/new", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.serve(sess, postForm("/tests/5/delete", url.Values{}))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, f.api.recorded())
}

func TestUpdateSendsPayloadAndRedirects(t *testing.T) {
	f := newFixture(t, rbac.ControlHide)
	sess := f.session(t, principal("tests.list", "tests.edit"))

	rec := f.serve(sess, httptest.NewRequest(http.MethodGet, "/tests/5/edit", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="CBC"`)

	rec = f.serve(sess, postForm("/tests/5", url.Values{"name": {"CBC"}, "category_id": {"2"}, "price": {"1350.5"}}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/tests", rec.Header().Get("Location"))

	calls := f.api.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, http.MethodPut, calls[1].Method)
	assert.Equal(t, "/tests/5", calls[1].Path)
	assert.Equal(t, map[string]any{"name": "CBC", "category_id": float64(2), "price": 1350.5}, calls[1].Body)

	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "Tests updated", flash.Message)
}

func TestCreateUsesResourceSpecificEndpoint(t *testing.T) {
	f := newFixture(t, rbac.ControlHide)
	sess := f.session(t, principal("test category.create"))

	rec := f.serve(sess, postForm("/test-category", url.Values{"name": {"Hematology"}, "is_active": {"1"}}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	calls := f.api.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, "/test-category/store", calls[0].Path)
	assert.Equal(t, map[string]any{"name": "Hematology", "is_active": true}, calls[0].Body)
}

func TestCreateValidationFailureSkipsBackend(t *testing.T) {
	f := newFixture(t, rbac.ControlHide)
	sess := f.session(t, principal("doctor.create"))

	rec := f.serve(sess, postForm("/doctors", url.Values{"name": {""}, "email": {"nope"}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Name is required")
	assert.Contains(t, body, "Email must be a valid email")
	assert.Empty(t, f.api.recorded())
}

func TestBackendUnauthorizedSignsOut(t *testing.T) {
	f := newFixture(t, rbac.ControlHide)
	f.api.status = http.StatusUnauthorized
	sess := f.session(t, principal("tests.list"))
	sess.Set(shared.CSRFSessionKey, "keep")

	rec := f.serve(sess, httptest.NewRequest(http.MethodGet, "/tests", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login", rec.Header().Get("Location"))
	_, _, ok := f.store.Read(sess)
	assert.False(t, ok)
	assert.Equal(t, "keep", sess.Get(shared.CSRFSessionKey))
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "error", flash.Kind)
}

func TestBackendFailureRendersErrorPage(t *testing.T) {
	f := newFixture(t, rbac.ControlHide)
	f.api.status = http.StatusInternalServerError
	rec := f.serve(f.session(t, principal("tests.list")), httptest.NewRequest(http.MethodGet, "/tests", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "could not complete the request")
}

func TestDashboardShowsRoles(t *testing.T) {
	f := newFixture(t, rbac.ControlHide)
	rec := f.serve(f.session(t, principal("tests.list")), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Lab Tech")
	assert.Contains(t, rec.Body.String(), `href="/tests"`)
}

func TestReadOnlyModulesHaveNoFormRoutes(t *testing.T) {
	f := newFixture(t, rbac.ControlHide)
	sess := f.session(t, principal("contact.list", "contact.create", "contact.delete"))

	rec := f.serve(sess, httptest.NewRequest(http.MethodGet, "/contacts/new", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.serve(sess, postForm("/contacts/3/delete", url.Values{}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBackendErrorsAsProblemForJSONClients(t *testing.T) {
	f := newFixture(t, rbac.ControlHide)
	f.api.status = http.StatusNotFound
	sess := f.session(t, principal("tests.list", "tests.edit"))

	req := httptest.NewRequest(http.MethodGet, "/tests/5/edit", nil)
	req.Header.Set("Accept", "application/json")
	rec := f.serve(sess, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, sess.Get(rbac.TokenKey))

	f.api.status = http.StatusUnauthorized
	rec = f.serve(sess, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, sess.Get(rbac.TokenKey))
}

func TestDashboardCountsPermittedModules(t *testing.T) {
	f := newFixture(t, rbac.ControlHide)
	rec := f.serve(f.session(t, principal("doctor.list", "tests.list")), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Total Doctors")
	assert.Contains(t, body, `<span class="stat-value">2</span>`)
	assert.Contains(t, body, "Total Tests")
	assert.Contains(t, body, `<span class="stat-value">1</span>`)
	assert.Len(t, f.api.recorded(), 2)
}

func TestDashboardSkipsCountsWithoutPermission(t *testing.T) {
	f := newFixture(t, rbac.ControlHide)
	rec := f.serve(f.session(t, principal("tests.list")), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Total Doctors")
	assert.Contains(t, rec.Body.String(), "Total Tests")
	for _, call := range f.api.recorded() {
		assert.NotEqual(t, "/doctors", call.Path)
	}
}

func TestDashboardMarksFailedCountUnavailable(t *testing.T) {
	f := newFixture(t, rbac.ControlHide)
	f.api.status = http.StatusInternalServerError
	rec := f.serve(f.session(t, principal("tests.list")), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<span class="stat-value">n/a</span>`)
}

func TestAdminCreateSendsRoleAndPassword(t *testing.T) {
	f := newFixture(t, rbac.ControlHide)
	sess := f.session(t, principal("admin.list", "admin.create"))

	rec := f.serve(sess, httptest.NewRequest(http.MethodGet, "/admins/new", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `type="password" name="password"`)
	assert.Contains(t, rec.Body.String(), `<option value="manager">`)

	rec = f.serve(sess, postForm("/admins", url.Values{
		"name": {"Nadia"}, "email": {"nadia@lab.test"}, "role": {"manager"}, "password": {"s3cret!"},
	}))
	require.Equal(t, http.StatusSeeOther, rec.Code)

	calls := f.api.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, "/users", calls[0].Path)
	assert.Equal(t, "manager", calls[0].Body["role"])
	assert.Equal(t, "s3cret!", calls[0].Body["password"])
}

func TestAdminCreateRejectsWeakInputWithoutEchoingPassword(t *testing.T) {
	f := newFixture(t, rbac.ControlHide)
	sess := f.session(t, principal("admin.list", "admin.create"))

	rec := f.serve(sess, postForm("/admins", url.Values{
		"name": {"Nadia"}, "email": {"nadia@lab.test"}, "role": {"owner"}, "password": {"abc12"},
	}))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Password must be at least 6 characters")
	assert.Contains(t, body, "Role must be one of admin, manager, user")
	assert.NotContains(t, body, "abc12")
	assert.Contains(t, body, `value="Nadia"`)
	assert.Empty(t, f.api.recorded())
}

func TestAdminEditOmitsPassword(t *testing.T) {
	f := newFixture(t, rbac.ControlHide)
	sess := f.session(t, principal("admin.list", "admin.edit"))

	rec := f.serve(sess, httptest.NewRequest(http.MethodGet, "/admins/4/edit", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `type="password"`)
	assert.Contains(t, rec.Body.String(), `<option value="manager" selected>`)

	rec = f.serve(sess, postForm("/admins/4", url.Values{
		"name": {"Nadia"}, "email": {"nadia@lab.test"}, "role": {"admin"}, "password": {"ignored1"},
	}))
	require.Equal(t, http.StatusSeeOther, rec.Code)

	calls := f.api.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, http.MethodPut, calls[1].Method)
	assert.Equal(t, "/users/4", calls[1].Path)
	assert.Equal(t, "admin", calls[1].Body["role"])
	assert.NotContains(t, calls[1].Body, "password")
}

func TestRoleCreateSendsPermissionMatrix(t *testing.T) {
	f := newFixture(t, rbac.ControlHide)
	sess := f.session(t, principal("role.list", "role.create"))

	rec := f.serve(sess, httptest.NewRequest(http.MethodGet, "/roles/new", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="permissions" value="doctor.create"`)
	assert.Contains(t, rec.Body.String(), `name="permissions" value="assign role.print"`)

	rec = f.serve(sess, postForm("/roles", url.Values{
		"name":        {"Reception"},
		"permissions": {"tests.list", "doctor.print", "bogus.list"},
	}))
	require.Equal(t, http.StatusSeeOther, rec.Code)

	calls := f.api.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "/roles", calls[0].Path)
	assert.Equal(t, "Reception", calls[0].Body["name"])

	grid, ok := calls[0].Body["permissions"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, grid, len(shared.Modules()))
	assert.NotContains(t, grid, "bogus")
	tests := grid["tests"].(map[string]any)
	assert.Equal(t, true, tests["list"])
	assert.Equal(t, false, tests["create"])
	assert.Equal(t, true, grid["doctor"].(map[string]any)["print"])
	assert.Equal(t, false, grid["admin"].(map[string]any)["delete"])
}

func TestRoleEditReadsFromCollection(t *testing.T) {
	f := newFixture(t, rbac.ControlHide)
	sess := f.session(t, principal("role.list", "role.edit"))

	rec := f.serve(sess, httptest.NewRequest(http.MethodGet, "/roles/3/edit", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `value="Lab Tech"`)
	assert.Contains(t, body, `value="tests.list" aria-label="tests.list" checked`)
	assert.Contains(t, body, `value="tests.edit" aria-label="tests.edit" checked`)
	assert.NotContains(t, body, `value="tests.delete" aria-label="tests.delete" checked`)

	calls := f.api.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "/roles", calls[0].Path)

	rec = f.serve(sess, httptest.NewRequest(http.MethodGet, "/roles/99/edit", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Roles record not found.")
}
