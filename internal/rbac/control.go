package rbac

import (
	"fmt"
	"strings"
)

// ControlPolicy decides how a UI control behaves when its gate denies.
type ControlPolicy string

const (
	// ControlHide omits denied controls from the page.
	ControlHide ControlPolicy = "hide"
	// ControlDisable renders denied controls in a disabled state.
	ControlDisable ControlPolicy = "disable"
)

// ParseControlPolicy validates a policy name. Empty selects ControlHide.
func ParseControlPolicy(s string) (ControlPolicy, error) {
	switch ControlPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ControlHide:
		return ControlHide, nil
	case ControlDisable:
		return ControlDisable, nil
	default:
		return "", fmt.Errorf("rbac: unknown control policy %q", s)
	}
}

// ControlState tells a template whether to emit a control and whether it
// can be operated.
type ControlState struct {
	Visible bool
	Enabled bool
}

// Control evaluates a control-level gate under policy.
func Control(caps Capabilities, policy ControlPolicy, reqs ...Requirement) ControlState {
	if IsAllowed(caps, reqs...) {
		return ControlState{Visible: true, Enabled: true}
	}
	if policy == ControlDisable && caps.Authenticated() {
		return ControlState{Visible: true, Enabled: false}
	}
	return ControlState{}
}
