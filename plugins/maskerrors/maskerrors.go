// Package maskerrors replaces unexpected error messages with a generic
// one before the result leaves the pipeline. Errors explicitly marked
// safe keep their message; paths and locations are always preserved.
package maskerrors

import (
	"context"
	"errors"
	"fmt"

	hooks "github.com/hanpama/pluggraph/internal/hooks"
)

// DefaultMessage is what callers see in place of an unexpected error.
const DefaultMessage = "Unexpected error."

type safeError struct{ err error }

func (e *safeError) Error() string { return e.err.Error() }
func (e *safeError) Unwrap() error { return e.err }

// Safe marks err as safe to expose to callers: the masking pass keeps
// its message verbatim. Returns nil for a nil err.
func Safe(err error) error {
	if err == nil {
		return nil
	}
	return &safeError{err: err}
}

// Safef builds a safe-to-expose error from a format string.
func Safef(format string, args ...any) error {
	return &safeError{err: fmt.Errorf(format, args...)}
}

// Plugin masks every outgoing error exactly once. It registers as an
// error masker, so the composer orders its finalize callback after all
// other result transforms regardless of registration position.
type Plugin struct {
	message string
}

type Option func(*Plugin)

// WithMessage overrides the generic replacement message.
func WithMessage(message string) Option {
	return func(p *Plugin) { p.message = message }
}

func New(opts ...Option) *Plugin {
	p := &Plugin{message: DefaultMessage}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Plugin) PluginName() string { return "maskerrors" }
func (p *Plugin) MasksErrors()       {}

func (p *Plugin) OnExecuteDone(ctx context.Context, rc *hooks.ResultControl) error {
	res := rc.Result()
	for _, gerr := range res.Errors {
		if gerr.Extensions != nil && gerr.Extensions["masked"] == true {
			continue
		}
		var safe *safeError
		if !errors.As(gerr, &safe) {
			gerr.Message = p.message
			gerr.Err = nil
		}
		if gerr.Extensions == nil {
			gerr.Extensions = map[string]any{}
		}
		gerr.Extensions["masked"] = true
	}
	return nil
}
