package rbac

// Permission represents an atomic "<module>.<action>" capability.
type Permission struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Module string `json:"module,omitempty"`
	Action string `json:"action,omitempty"`
}

// Role is a named, backend-defined bundle of permissions. Names are unique
// within a guard.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	GuardName   string       `json:"guard_name,omitempty"`
	Permissions []Permission `json:"permissions"`
}

// Principal describes the authenticated console user as returned by the
// login endpoint.
type Principal struct {
	ID    int64  `json:"id" validate:"required"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Roles []Role `json:"roles"`
}

// RoleNames returns the names of the assigned roles in order.
func (p *Principal) RoleNames() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.Roles))
	for _, role := range p.Roles {
		names = append(names, role.Name)
	}
	return names
}
