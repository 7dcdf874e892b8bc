package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	hooks "github.com/hanpama/pluggraph/internal/hooks"
	language "github.com/hanpama/pluggraph/internal/language"
)

type namedPlugin struct{ name string }

func (p *namedPlugin) PluginName() string { return p.name }

type donePlugin struct {
	namedPlugin
	fn func(rc *hooks.ResultControl) error
}

func (p *donePlugin) OnExecuteDone(ctx context.Context, rc *hooks.ResultControl) error {
	return p.fn(rc)
}

type maskerPlugin struct{ donePlugin }

func (p *maskerPlugin) MasksErrors() {}

type schemaOwner struct {
	namedPlugin
	schema *language.Schema
}

func (p *schemaOwner) OnSchemaChange(ctx context.Context, sc *hooks.SchemaControl) {
	if p.schema != nil {
		sc.ReplaceSchema(p.schema)
	}
}
func (p *schemaOwner) ExclusiveSchema() {}

type wrapPlugin struct {
	namedPlugin
	log *[]string
}

func (p *wrapPlugin) OnResolverCalled(ctx context.Context, info *hooks.ResolveInfo, rc *hooks.ResolverControl) error {
	name := p.name
	log := p.log
	rc.WrapResolver(func(next hooks.FieldResolver) hooks.FieldResolver {
		return func(ctx context.Context, info *hooks.ResolveInfo) (any, error) {
			*log = append(*log, name+"-before")
			v, err := next(ctx, info)
			*log = append(*log, name+"-after")
			return v, err
		}
	})
	return nil
}

func TestComposeRejectsNilPlugin(t *testing.T) {
	_, err := Compose(&namedPlugin{name: "a"}, nil)
	var cerr *CompositionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CompositionError, got %v", err)
	}
}

func TestComposeRejectsTwoExclusiveOwners(t *testing.T) {
	_, err := Compose(
		&schemaOwner{namedPlugin: namedPlugin{name: "owner1"}},
		&schemaOwner{namedPlugin: namedPlugin{name: "owner2"}},
	)
	var cerr *CompositionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CompositionError, got %v", err)
	}
	if len(cerr.Plugins) != 2 {
		t.Fatalf("error should name both owners: %v", cerr.Plugins)
	}
}

func TestFinalizeReversesAndMovesMaskersLast(t *testing.T) {
	var order []string
	mk := func(name string) *donePlugin {
		return &donePlugin{
			namedPlugin: namedPlugin{name: name},
			fn: func(rc *hooks.ResultControl) error {
				order = append(order, name)
				return nil
			},
		}
	}
	masker := &maskerPlugin{donePlugin: donePlugin{
		namedPlugin: namedPlugin{name: "masker"},
		fn: func(rc *hooks.ResultControl) error {
			order = append(order, "masker")
			return nil
		},
	}}

	// Masker registered first must still run last.
	p, err := Compose(masker, mk("a"), mk("b"))
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	rc := hooks.NewResultControl(&language.ExecutionResult{})
	for _, h := range p.Finalize() {
		if err := h.OnExecuteDone(context.Background(), rc); err != nil {
			t.Fatalf("finalize: %v", err)
		}
	}
	want := []string{"b", "a", "masker"}
	if len(order) != 3 || order[0] != want[0] || order[1] != want[1] || order[2] != want[2] {
		t.Fatalf("finalize order = %v, want %v", order, want)
	}
}

func TestInterceptOnionOrder(t *testing.T) {
	var log []string
	a := &wrapPlugin{namedPlugin: namedPlugin{name: "A"}, log: &log}
	b := &wrapPlugin{namedPlugin: namedPlugin{name: "B"}, log: &log}
	p, err := Compose(a, b)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	real := func(ctx context.Context, info *hooks.ResolveInfo) (any, error) {
		log = append(log, "real")
		return "value", nil
	}
	v, err := p.Intercept(context.Background(), &hooks.ResolveInfo{}, real)
	if err != nil {
		t.Fatalf("Intercept: %v", err)
	}
	if v != "value" {
		t.Fatalf("value lost through wrapping: %v", v)
	}
	want := []string{"B-before", "A-before", "real", "A-after", "B-after"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log = %v, want %v", log, want)
		}
	}
}

func TestInterceptHookErrorFailsField(t *testing.T) {
	failing := &failingResolverHook{namedPlugin{name: "fail"}}
	p, err := Compose(failing)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	_, rerr := p.Intercept(context.Background(), &hooks.ResolveInfo{}, func(ctx context.Context, info *hooks.ResolveInfo) (any, error) {
		t.Fatal("resolver must not run after hook failure")
		return nil, nil
	})
	if rerr == nil {
		t.Fatalf("expected error from failing hook")
	}
}

type failingResolverHook struct{ namedPlugin }

func (p *failingResolverHook) OnResolverCalled(ctx context.Context, info *hooks.ResolveInfo, rc *hooks.ResolverControl) error {
	return errors.New("hook refused")
}

func TestApplySchemaChangeReplacement(t *testing.T) {
	original := language.MustLoadSchema(`type Query { a: String }`)
	replacement := language.MustLoadSchema(`type Query { b: String }`)
	owner := &schemaOwner{namedPlugin: namedPlugin{name: "owner"}, schema: replacement}
	p, err := Compose(owner)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	got := p.ApplySchemaChange(context.Background(), original)
	if got != replacement {
		t.Fatalf("schema replacement not applied")
	}
}

func TestHolderReloadKeepsOldPipelineOnFailure(t *testing.T) {
	schema := language.MustLoadSchema(`type Query { a: String }`)
	h, err := NewHolder(context.Background(), schema, &namedPlugin{name: "keep"})
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	oldPipe, oldSchema := h.Snapshot()

	if err := h.Reload(context.Background(), schema, &namedPlugin{name: "new"}, nil); err == nil {
		t.Fatalf("reload with nil plugin must fail")
	}
	pipe, sch := h.Snapshot()
	if pipe != oldPipe || sch != oldSchema {
		t.Fatalf("failed reload must keep the previous snapshot serving")
	}

	if err := h.Reload(context.Background(), schema, &namedPlugin{name: "new"}); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	pipe, _ = h.Snapshot()
	if pipe == oldPipe {
		t.Fatalf("successful reload must install a new pipeline")
	}
}

// A snapshot taken during a reload must pair the pipeline with the
// schema of the same generation.
func TestSnapshotNeverTearsAcrossReloads(t *testing.T) {
	s1 := language.MustLoadSchema(`type Query { a: String }`)
	s2 := language.MustLoadSchema(`type Query { b: String }`)
	h, err := NewHolder(context.Background(), s1, &namedPlugin{name: "g1"})
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			if i%2 == 0 {
				_ = h.Reload(context.Background(), s2, &namedPlugin{name: "g2"})
			} else {
				_ = h.Reload(context.Background(), s1, &namedPlugin{name: "g1"})
			}
		}
	}()

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				pipe, sch := h.Snapshot()
				name := pipe.Plugins()[0].PluginName()
				if (name == "g1" && sch != s1) || (name == "g2" && sch != s2) {
					t.Errorf("torn snapshot: pipeline %s paired with another generation's schema", name)
					return
				}
			}
		}()
	}
	wg.Wait()
}
