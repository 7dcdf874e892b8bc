package orchestrator

import "fmt"

// InternalPipelineError reports an unexpected condition in the pipeline
// core itself: a re-entered phase or a control action invoked at a phase
// where it is illegal. It fails the single offending request and is
// never silently swallowed.
type InternalPipelineError struct {
	Phase string
	Err   error
}

func (e *InternalPipelineError) Error() string {
	return fmt.Sprintf("internal pipeline error in %s phase: %v", e.Phase, e.Err)
}

func (e *InternalPipelineError) Unwrap() error { return e.Err }
