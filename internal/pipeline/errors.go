package pipeline

import "fmt"

// CompositionError reports a plugin set that cannot be fused. It is
// raised at build time, never deferred to request time; a process that
// fails composition at startup must not serve.
type CompositionError struct {
	Plugins []string
	Reason  string
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("pipeline composition failed: %s", e.Reason)
}
