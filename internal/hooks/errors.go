package hooks

import "fmt"

// ContractViolation reports a control action invoked outside the phase
// where it is legal. Violations that are statically determinable are
// caught at composition time; the rest fail the single offending request
// as an internal pipeline error.
type ContractViolation struct {
	Plugin string
	Kind   HookKind
	Action string
	Reason string
}

func (e *ContractViolation) Error() string {
	who := e.Plugin
	if who == "" {
		who = "plugin"
	}
	return fmt.Sprintf("contract violation: %s invoked %q in %s: %s", who, e.Action, e.Kind, e.Reason)
}
