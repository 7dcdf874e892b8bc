package depthlimit

import (
	"context"
	"strings"
	"testing"

	hooks "github.com/hanpama/pluggraph/internal/hooks"
	language "github.com/hanpama/pluggraph/internal/language"
)

const sdl = `
type Query { node: Node }
type Node { name: String, child: Node }
`

func runRule(t *testing.T, p *Plugin, query string) language.ErrorList {
	t.Helper()
	schema := language.MustLoadSchema(sdl)
	doc, err := language.ParseQuery(query)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	vc := hooks.NewValidateControl(schema, doc)
	if _, err := p.OnValidate(context.Background(), vc); err != nil {
		t.Fatalf("OnValidate: %v", err)
	}
	rules := vc.Rules()
	if len(rules) != 1 {
		t.Fatalf("expected 1 injected rule, got %d", len(rules))
	}
	return rules[0](schema, doc)
}

func nested(depth int) string {
	q := "name"
	for i := 0; i < depth-1; i++ {
		q = "child { " + q + " }"
	}
	return "{ node { " + q + " } }"
}

func TestWithinLimit(t *testing.T) {
	p := New(WithMaxDepth(5))
	if errs := runRule(t, p, nested(3)); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestExceedsLimit(t *testing.T) {
	p := New(WithMaxDepth(3))
	errs := runRule(t, p, nested(5))
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	if !strings.Contains(errs[0].Message, "exceeding the maximum of 3") {
		t.Fatalf("unexpected message: %q", errs[0].Message)
	}
}

func TestFragmentSpreadCountsAtSpreadPoint(t *testing.T) {
	p := New(WithMaxDepth(3))
	query := `
	{ node { child { ...deep } } }
	fragment deep on Node { child { name } }
	`
	errs := runRule(t, p, query)
	if len(errs) != 1 {
		t.Fatalf("fragment depth not counted: %v", errs)
	}
}

func TestCyclicFragmentsDoNotHang(t *testing.T) {
	p := New(WithMaxDepth(3))
	query := `
	{ node { ...a } }
	fragment a on Node { child { ...a } }
	`
	// Depth is finite because the cycle is cut; the built-in validation
	// rules reject the cycle itself.
	_ = runRule(t, p, query)
}
