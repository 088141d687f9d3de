package console

import (
	"strings"

	"github.com/datainovate/labconsole/internal/rbac"
	"github.com/datainovate/labconsole/internal/view"
)

// navEntry is either a module link (Module set) or a group of keys.
type navEntry struct {
	Label    string
	Path     string
	Module   string
	Children []string
}

var sidebar = []navEntry{
	{Label: "Dashboard", Path: "/"},
	{Module: "doctors"},
	{Module: "tests"},
	{Label: "Settings", Children: []string{"test-category", "branches", "codes", "hero"}},
	{Label: "User Management", Children: []string{"admins", "roles", "permissions", "assign-role", "customers"}},
	{Module: "careers"},
	{Module: "contacts"},
}

// Navigation builds the sidebar for caps. Module links are filtered through
// the module gate and a group with no visible child is dropped.
func Navigation(reg *Registry, caps rbac.Capabilities, currentPath string) []view.NavItem {
	if !caps.Authenticated() {
		return nil
	}
	items := make([]view.NavItem, 0, len(sidebar))
	for _, entry := range sidebar {
		switch {
		case entry.Module != "":
			if item, ok := moduleItem(reg, caps, entry.Module, currentPath); ok {
				items = append(items, item)
			}
		case len(entry.Children) > 0:
			group := view.NavItem{Label: entry.Label}
			for _, key := range entry.Children {
				if item, ok := moduleItem(reg, caps, key, currentPath); ok {
					group.Children = append(group.Children, item)
					group.Active = group.Active || item.Active
				}
			}
			if len(group.Children) > 0 {
				items = append(items, group)
			}
		default:
			items = append(items, view.NavItem{Label: entry.Label, Path: entry.Path, Active: currentPath == entry.Path})
		}
	}
	return items
}

func moduleItem(reg *Registry, caps rbac.Capabilities, key, currentPath string) (view.NavItem, bool) {
	m, ok := reg.Lookup(key)
	if !ok || !rbac.IsAllowed(caps, m.Gate()) {
		return view.NavItem{}, false
	}
	active := currentPath == m.Path() || strings.HasPrefix(currentPath, m.Path()+"/")
	return view.NavItem{Label: m.Title, Path: m.Path(), Active: active}, true
}

// Navigator adapts Navigation for the template engine.
func (r *Registry) Navigator() view.Navigator {
	return func(caps rbac.Capabilities, currentPath string) []view.NavItem {
		return Navigation(r, caps, currentPath)
	}
}
