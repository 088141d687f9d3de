package rbac

import "strings"

type matchKind uint8

const (
	matchExact matchKind = iota + 1
	matchPrefix
)

// Requirement is one acceptable way to satisfy a gate: either exact
// membership of a permission name or any permission starting with a prefix.
// The zero Requirement is never satisfied.
type Requirement struct {
	kind  matchKind
	value string
}

// Exact requires the named permission.
func Exact(name string) Requirement {
	return Requirement{kind: matchExact, value: strings.TrimSpace(name)}
}

// Prefix requires any permission whose name begins with prefix. The match is
// literal: Prefix("doctor.") does not accept "doctors.edit".
func Prefix(prefix string) Requirement {
	return Requirement{kind: matchPrefix, value: strings.TrimSpace(prefix)}
}

// Module requires any action of the module, i.e. Prefix(module + ".").
func Module(module string) Requirement {
	return Prefix(strings.TrimSpace(module) + ".")
}

// ParseRequirement reads the textual form used in templates and
// configuration: a trailing "." denotes a prefix, anything else an exact name.
func ParseRequirement(s string) Requirement {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, ".") {
		return Prefix(s)
	}
	return Exact(s)
}

// IsPrefix reports whether r is a prefix requirement.
func (r Requirement) IsPrefix() bool {
	return r.kind == matchPrefix
}

// Value returns the permission name or prefix.
func (r Requirement) Value() string {
	return r.value
}

// String renders the textual form accepted by ParseRequirement.
func (r Requirement) String() string {
	return r.value
}

// SatisfiedBy reports whether caps meet the requirement.
func (r Requirement) SatisfiedBy(caps Capabilities) bool {
	if r.value == "" {
		return false
	}
	switch r.kind {
	case matchExact:
		return caps.Has(r.value)
	case matchPrefix:
		return caps.HasPrefix(r.value)
	default:
		return false
	}
}
