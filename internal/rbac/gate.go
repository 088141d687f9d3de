package rbac

import "strings"

// IsAllowed reports whether caps satisfy at least one requirement. A gate
// without requirements, or an unauthenticated set, denies.
func IsAllowed(caps Capabilities, reqs ...Requirement) bool {
	if !caps.Authenticated() {
		return false
	}
	for _, req := range reqs {
		if req.SatisfiedBy(caps) {
			return true
		}
	}
	return false
}

// Label renders requirements for logs and metric labels.
func Label(reqs ...Requirement) string {
	parts := make([]string, 0, len(reqs))
	for _, req := range reqs {
		parts = append(parts, req.String())
	}
	return strings.Join(parts, "|")
}
