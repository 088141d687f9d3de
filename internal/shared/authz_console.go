package shared

// Permission actions understood by the backend. A permission name is
// "<module>.<action>".
const (
	ActionCreate = "create"
	ActionList   = "list"
	ActionEdit   = "edit"
	ActionDelete = "delete"
	ActionPrint  = "print"
)

// Permission modules declared by the backend.
const (
	ModuleDoctor       = "doctor"
	ModuleTests        = "tests"
	ModuleTestCategory = "test category"
	ModuleBranches     = "branches"
	ModuleCodes        = "codes"
	ModuleHero         = "hero"
	ModuleCustomer     = "customer"
	ModuleCareer       = "career"
	ModuleContact      = "contact"
	ModuleRole         = "role"
	ModulePermission   = "permission"
	ModuleAdmin        = "admin"
	ModuleAssignRole   = "assign role"
)

// Modules lists every permission module in display order.
func Modules() []string {
	return []string{
		ModuleDoctor, ModuleTests, ModuleTestCategory, ModuleBranches, ModuleCodes, ModuleHero,
		ModuleCustomer, ModuleCareer, ModuleContact, ModuleRole, ModulePermission, ModuleAdmin, ModuleAssignRole,
	}
}

// Actions lists every action in display order.
func Actions() []string {
	return []string{ActionCreate, ActionList, ActionEdit, ActionDelete, ActionPrint}
}

// Permission joins a module and action into a permission name.
func Permission(module, action string) string {
	return module + "." + action
}

// ModuleScopes lists every permission of a module.
func ModuleScopes(module string) []string {
	actions := Actions()
	scopes := make([]string, 0, len(actions))
	for _, action := range actions {
		scopes = append(scopes, Permission(module, action))
	}
	return scopes
}
