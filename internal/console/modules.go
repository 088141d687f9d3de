// Package console serves the gated CRUD screens of the laboratory admin
// console. Every screen is a Module backed by one backend resource.
package console

import (
	"net/url"
	"strings"

	"github.com/datainovate/labconsole/internal/rbac"
	"github.com/datainovate/labconsole/internal/shared"
)

// Field input kinds.
const (
	FieldText     = "text"
	FieldEmail    = "email"
	FieldNumber   = "number"
	FieldTextarea = "textarea"
	FieldCheckbox = "checkbox"
	FieldSelect   = "select"
	// FieldPassword is never echoed back into a rendered form.
	FieldPassword = "password"
	// FieldPermissions renders the module by action grid of the permission
	// catalogue.
	FieldPermissions = "permissions"
)

// Column is one list column. Key may address a nested object with a dot,
// e.g. "category.name".
type Column struct {
	Key   string
	Label string
}

// Field is one input of the create/edit form.
type Field struct {
	Name     string
	Label    string
	Kind     string
	Required bool
	MinLen   int
	// Options restricts a FieldSelect to the listed values.
	Options []string
	// CreateOnly fields are left out of the edit form and its payload.
	CreateOnly bool
}

// Module describes one console screen.
type Module struct {
	Key   string
	Title string
	// Permission is the module part of "<module>.<action>" permission names.
	Permission string
	Endpoint   string
	// CreateEndpoint and UpdateEndpoint override the REST defaults. UpdateEndpoint
	// carries an "{id}" placeholder.
	CreateEndpoint string
	UpdateEndpoint string
	Columns        []Column
	Fields         []Field
	// Actions lists the record actions the backend supports for this resource.
	Actions []string
	// ReadFromList loads the edit form from the collection because the
	// resource has no single-record endpoint.
	ReadFromList bool
}

// Perm returns the exact permission name for action on this module.
func (m Module) Perm(action string) string {
	return shared.Permission(m.Permission, action)
}

// Gate is the module-level requirement: any permission of the module.
func (m Module) Gate() rbac.Requirement {
	return rbac.Module(m.Permission)
}

// Supports reports whether the resource accepts action.
func (m Module) Supports(action string) bool {
	for _, a := range m.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Path is the console URL of the list screen.
func (m Module) Path() string {
	return "/" + m.Key
}

// NewPath is the console URL of the create form.
func (m Module) NewPath() string {
	return m.Path() + "/new"
}

// EditPath is the console URL of the edit form for id.
func (m Module) EditPath(id string) string {
	return m.RecordPath(id) + "/edit"
}

// DeletePath is the console URL that deletes id.
func (m Module) DeletePath(id string) string {
	return m.RecordPath(id) + "/delete"
}

// RecordPath is the console URL that updates id.
func (m Module) RecordPath(id string) string {
	return m.Path() + "/" + url.PathEscape(id)
}

func (m Module) itemEndpoint(id string) string {
	return m.Endpoint + "/" + url.PathEscape(id)
}

func (m Module) createEndpoint() string {
	if m.CreateEndpoint != "" {
		return m.CreateEndpoint
	}
	return m.Endpoint
}

func (m Module) updateEndpoint(id string) string {
	if m.UpdateEndpoint != "" {
		return strings.ReplaceAll(m.UpdateEndpoint, "{id}", url.PathEscape(id))
	}
	return m.itemEndpoint(id)
}

var (
	crud     = []string{shared.ActionCreate, shared.ActionEdit, shared.ActionDelete}
	readOnly = []string{shared.ActionDelete}
)

// Registry holds the console modules keyed by URL segment.
type Registry struct {
	modules []Module
	byKey   map[string]Module
}

// NewRegistry indexes modules. Later duplicates replace earlier ones.
func NewRegistry(modules ...Module) *Registry {
	reg := &Registry{byKey: make(map[string]Module, len(modules))}
	for _, m := range modules {
		if _, dup := reg.byKey[m.Key]; !dup {
			reg.modules = append(reg.modules, m)
		} else {
			for i := range reg.modules {
				if reg.modules[i].Key == m.Key {
					reg.modules[i] = m
				}
			}
		}
		reg.byKey[m.Key] = m
	}
	return reg
}

// Modules returns the modules in registration order.
func (r *Registry) Modules() []Module {
	out := make([]Module, len(r.modules))
	copy(out, r.modules)
	return out
}

// Lookup finds a module by key.
func (r *Registry) Lookup(key string) (Module, bool) {
	m, ok := r.byKey[key]
	return m, ok
}

// DefaultRegistry returns the laboratory console modules.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Module{
			Key: "doctors", Title: "Doctors", Permission: shared.ModuleDoctor, Endpoint: "/doctors",
			Columns: []Column{{"name", "Name"}, {"email", "Email"}, {"phone", "Phone"}},
			Fields: []Field{
				{Name: "name", Label: "Name", Kind: FieldText, Required: true},
				{Name: "email", Label: "Email", Kind: FieldEmail, Required: true},
				{Name: "phone", Label: "Phone", Kind: FieldText},
			},
			Actions: crud,
		},
		Module{
			Key: "tests", Title: "Tests", Permission: shared.ModuleTests, Endpoint: "/tests",
			Columns: []Column{
				{"name", "Name"}, {"category.name", "Category"}, {"price", "Price"},
				{"discounted_price", "Discounted Price"}, {"duration", "Duration"}, {"description", "Description"},
			},
			Fields: []Field{
				{Name: "name", Label: "Name", Kind: FieldText, Required: true},
				{Name: "category_id", Label: "Category ID", Kind: FieldNumber, Required: true},
				{Name: "price", Label: "Price", Kind: FieldNumber, Required: true},
				{Name: "discounted_price", Label: "Discounted Price", Kind: FieldNumber},
				{Name: "duration", Label: "Duration", Kind: FieldText},
				{Name: "description", Label: "Description", Kind: FieldTextarea},
			},
			Actions: crud,
		},
		Module{
			Key: "test-category", Title: "Test Category", Permission: shared.ModuleTestCategory, Endpoint: "/test-category",
			CreateEndpoint: "/test-category/store", UpdateEndpoint: "/test-category/{id}/update",
			Columns: []Column{{"name", "Name"}, {"description", "Description"}, {"slug", "Slug"}, {"is_active", "Active"}},
			Fields: []Field{
				{Name: "name", Label: "Name", Kind: FieldText, Required: true},
				{Name: "slug", Label: "Slug", Kind: FieldText},
				{Name: "description", Label: "Description", Kind: FieldTextarea},
				{Name: "is_active", Label: "Active", Kind: FieldCheckbox},
			},
			Actions: crud,
		},
		Module{
			Key: "branches", Title: "Branches", Permission: shared.ModuleBranches, Endpoint: "/branches",
			Columns: []Column{{"id", "ID"}, {"name", "Name"}, {"email", "Email"}, {"phone", "Phone"}, {"is_active", "Active"}},
			Fields: []Field{
				{Name: "name", Label: "Name", Kind: FieldText, Required: true},
				{Name: "email", Label: "Email", Kind: FieldEmail},
				{Name: "phone", Label: "Phone", Kind: FieldText},
				{Name: "is_active", Label: "Active", Kind: FieldCheckbox},
			},
			Actions: crud,
		},
		Module{
			Key: "codes", Title: "Codes", Permission: shared.ModuleCodes, Endpoint: "/codes",
			Columns: []Column{{"value", "Value"}, {"type", "Type"}, {"is_active", "Active"}},
			Fields: []Field{
				{Name: "value", Label: "Value", Kind: FieldText, Required: true},
				{Name: "type", Label: "Type", Kind: FieldText, Required: true},
				{Name: "is_active", Label: "Active", Kind: FieldCheckbox},
			},
			Actions: crud,
		},
		Module{
			Key: "hero", Title: "Hero Section", Permission: shared.ModuleHero, Endpoint: "/hero",
			Columns: []Column{{"title", "Title"}, {"subtitle", "Subtitle"}, {"is_active", "Active"}},
			Fields: []Field{
				{Name: "title", Label: "Title", Kind: FieldText, Required: true},
				{Name: "subtitle", Label: "Subtitle", Kind: FieldTextarea},
				{Name: "is_active", Label: "Active", Kind: FieldCheckbox},
			},
			Actions: crud,
		},
		Module{
			Key: "admins", Title: "Admin", Permission: shared.ModuleAdmin, Endpoint: "/users",
			Columns: []Column{{"id", "ID"}, {"name", "Name"}, {"email", "Email"}, {"role", "Role"}},
			Fields: []Field{
				{Name: "name", Label: "Full Name", Kind: FieldText, Required: true, MinLen: 2},
				{Name: "email", Label: "Email", Kind: FieldEmail, Required: true},
				{Name: "role", Label: "Role", Kind: FieldSelect, Required: true, Options: []string{"admin", "manager", "user"}},
				{Name: "password", Label: "Password", Kind: FieldPassword, Required: true, MinLen: 6, CreateOnly: true},
			},
			Actions: crud,
		},
		Module{
			Key: "roles", Title: "Roles", Permission: shared.ModuleRole, Endpoint: "/roles",
			Columns: []Column{{"id", "ID"}, {"name", "Name"}, {"permissions", "Permissions"}},
			Fields: []Field{
				{Name: "name", Label: "Role Name", Kind: FieldText, Required: true, MinLen: 2},
				{Name: "permissions", Label: "Permissions", Kind: FieldPermissions},
			},
			Actions:      crud,
			ReadFromList: true,
		},
		Module{
			Key: "permissions", Title: "Permissions", Permission: shared.ModulePermission, Endpoint: "/permissions",
			Columns: []Column{{"id", "ID"}, {"module", "Module"}, {"name", "Name"}},
			Fields: []Field{
				{Name: "module", Label: "Module", Kind: FieldText, Required: true},
				{Name: "name", Label: "Name", Kind: FieldText, Required: true},
			},
			Actions: crud,
		},
		Module{
			Key: "assign-role", Title: "Assign Role", Permission: shared.ModuleAssignRole, Endpoint: "/assign-role",
			Columns: []Column{{"id", "ID"}, {"admin_name", "Admin"}, {"roles", "Roles"}},
			Fields: []Field{
				{Name: "user_id", Label: "Admin ID", Kind: FieldNumber, Required: true},
				{Name: "role", Label: "Role", Kind: FieldText, Required: true},
			},
			Actions: crud,
		},
		Module{
			Key: "customers", Title: "Customer", Permission: shared.ModuleCustomer, Endpoint: "/customers",
			Columns: []Column{
				{"name", "Name"}, {"email", "Email"}, {"phone", "Phone"}, {"gender", "Gender"},
				{"city", "City"}, {"state", "State"}, {"zip_code", "Zip Code"}, {"status", "Status"},
			},
			Fields: []Field{
				{Name: "name", Label: "Name", Kind: FieldText, Required: true},
				{Name: "email", Label: "Email", Kind: FieldEmail, Required: true},
				{Name: "phone", Label: "Phone", Kind: FieldText},
				{Name: "gender", Label: "Gender", Kind: FieldText},
				{Name: "city", Label: "City", Kind: FieldText},
				{Name: "state", Label: "State", Kind: FieldText},
				{Name: "zip_code", Label: "Zip Code", Kind: FieldText},
				{Name: "status", Label: "Status", Kind: FieldText},
			},
			Actions: crud,
		},
		Module{
			Key: "careers", Title: "Career Form", Permission: shared.ModuleCareer, Endpoint: "/careers",
			Columns: []Column{
				{"name", "Name"}, {"email", "Email"}, {"phone", "Phone"},
				{"cover_letter", "Cover Letter"}, {"cv_path", "CV"}, {"created_at", "Submitted"},
			},
			Actions: readOnly,
		},
		Module{
			Key: "contacts", Title: "Contact", Permission: shared.ModuleContact, Endpoint: "/contacts",
			Columns: []Column{
				{"name", "Name"}, {"email", "Email"}, {"subject", "Subject"},
				{"message", "Message"}, {"created_at", "Received"},
			},
		},
	)
}
