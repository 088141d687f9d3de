package rbac

import (
	"encoding/json"
	"sort"
	"strings"
)

// Capabilities is the resolved view of a principal: its roles and the
// flattened set of permission names they grant. The zero value is the
// unauthenticated, empty set.
type Capabilities struct {
	principal *Principal
	names     map[string]struct{}
}

// Resolve flattens the permissions of every role held by the principal into
// a deduplicated set. Roles with missing permission lists and permissions
// with blank names contribute nothing.
func Resolve(principal *Principal) Capabilities {
	if principal == nil {
		return Capabilities{}
	}
	names := make(map[string]struct{})
	for _, role := range principal.Roles {
		for _, perm := range role.Permissions {
			name := strings.TrimSpace(perm.Name)
			if name == "" {
				continue
			}
			names[name] = struct{}{}
		}
	}
	return Capabilities{principal: principal, names: names}
}

// Authenticated reports whether a principal backs the set.
func (c Capabilities) Authenticated() bool {
	return c.principal != nil
}

// Principal returns a copy of the principal, or nil when unauthenticated.
func (c Capabilities) Principal() *Principal {
	if c.principal == nil {
		return nil
	}
	p := *c.principal
	p.Roles = c.Roles()
	return &p
}

// Roles returns the principal's roles.
func (c Capabilities) Roles() []Role {
	if c.principal == nil {
		return []Role{}
	}
	roles := make([]Role, len(c.principal.Roles))
	copy(roles, c.principal.Roles)
	return roles
}

// Has reports exact membership.
func (c Capabilities) Has(name string) bool {
	_, ok := c.names[name]
	return ok
}

// HasPrefix reports whether any held permission begins with prefix.
func (c Capabilities) HasPrefix(prefix string) bool {
	if prefix == "" {
		return false
	}
	for name := range c.names {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Len returns the number of distinct permission names.
func (c Capabilities) Len() int {
	return len(c.names)
}

// Names returns the permission names sorted alphabetically.
func (c Capabilities) Names() []string {
	names := make([]string, 0, len(c.names))
	for name := range c.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type capabilitiesJSON struct {
	Roles           []Role   `json:"roles"`
	PermissionNames []string `json:"permissionNames"`
}

// MarshalJSON renders the {roles, permissionNames} view consumed by clients.
func (c Capabilities) MarshalJSON() ([]byte, error) {
	return json.Marshal(capabilitiesJSON{Roles: c.Roles(), PermissionNames: c.Names()})
}
