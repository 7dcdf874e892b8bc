// Package depthlimit rejects deeply nested documents during validation.
// It injects a validation rule that measures the selection depth of
// every operation, following fragment spreads, and reports an error for
// each operation exceeding the configured maximum.
package depthlimit

import (
	"context"

	hooks "github.com/hanpama/pluggraph/internal/hooks"
	language "github.com/hanpama/pluggraph/internal/language"
)

// DefaultMaxDepth is used when no depth option is given.
const DefaultMaxDepth = 15

type Plugin struct {
	maxDepth int
}

type Option func(*Plugin)

// WithMaxDepth sets the maximum allowed selection depth.
func WithMaxDepth(n int) Option {
	return func(p *Plugin) { p.maxDepth = n }
}

func New(opts ...Option) *Plugin {
	p := &Plugin{maxDepth: DefaultMaxDepth}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Plugin) PluginName() string { return "depthlimit" }

func (p *Plugin) OnValidate(ctx context.Context, vc *hooks.ValidateControl) (hooks.AfterValidate, error) {
	vc.AddRule(p.rule)
	return nil, nil
}

func (p *Plugin) rule(schema *language.Schema, doc *language.QueryDocument) language.ErrorList {
	var errs language.ErrorList
	for _, op := range doc.Operations {
		depth := selectionDepth(doc, op.SelectionSet, map[string]bool{})
		if depth > p.maxDepth {
			name := op.Name
			if name == "" {
				name = "(anonymous)"
			}
			errs = append(errs, language.Errorf(nil,
				"Operation %s has depth %d, exceeding the maximum of %d.",
				name, depth, p.maxDepth))
		}
	}
	return errs
}

// selectionDepth returns the deepest field nesting in set. Fragment
// spreads contribute the depth of their definition at the spread point;
// inline fragments and the spread itself add no level of their own.
func selectionDepth(doc *language.QueryDocument, set language.SelectionSet, visiting map[string]bool) int {
	max := 0
	for _, sel := range set {
		d := 0
		switch s := sel.(type) {
		case *language.Field:
			d = 1 + selectionDepth(doc, s.SelectionSet, visiting)
		case *language.InlineFragment:
			d = selectionDepth(doc, s.SelectionSet, visiting)
		case *language.FragmentSpread:
			if visiting[s.Name] {
				continue // cycles are reported by the built-in rules
			}
			frag := doc.Fragments.ForName(s.Name)
			if frag == nil {
				continue
			}
			visiting[s.Name] = true
			d = selectionDepth(doc, frag.SelectionSet, visiting)
			delete(visiting, s.Name)
		}
		if d > max {
			max = d
		}
	}
	return max
}
