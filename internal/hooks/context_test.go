package hooks

import (
	"errors"
	"testing"
)

func TestNewExecutionContextCopiesSeed(t *testing.T) {
	seed := map[string]any{"user": "alice"}
	ec := NewExecutionContext(seed)
	seed["user"] = "mallory"

	v, ok := ec.Get("user")
	if !ok || v != "alice" {
		t.Fatalf("seed mutation leaked into context: %v", v)
	}
}

func TestGetAbsentKey(t *testing.T) {
	ec := NewExecutionContext(nil)
	if v, ok := ec.Get("missing"); ok || v != nil {
		t.Fatalf("absent key must report (nil, false), got (%v, %v)", v, ok)
	}
}

func TestExtendLastWriterWins(t *testing.T) {
	ec := NewExecutionContext(map[string]any{"k": 1})
	if err := ec.Extend(map[string]any{"k": 2, "other": "x"}); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if v, _ := ec.Get("k"); v != 2 {
		t.Fatalf("later writer must win, got %v", v)
	}
	if ec.Len() != 2 {
		t.Fatalf("unexpected length %d", ec.Len())
	}
}

func TestExtendAfterFreezeIsViolation(t *testing.T) {
	ec := NewExecutionContext(nil)
	ec.Freeze()
	err := ec.Extend(map[string]any{"late": true})
	var cv *ContractViolation
	if !errors.As(err, &cv) {
		t.Fatalf("expected ContractViolation, got %v", err)
	}
	if _, ok := ec.Get("late"); ok {
		t.Fatalf("frozen context must not accept writes")
	}
}

func TestContextControlRetire(t *testing.T) {
	ec := NewExecutionContext(nil)
	cc := NewContextControl(ec)
	cc.SetPlugin("auth")
	if err := cc.ExtendContext(map[string]any{"ok": true}); err != nil {
		t.Fatalf("ExtendContext before retire: %v", err)
	}
	cc.Retire()
	err := cc.ExtendContext(map[string]any{"sneaky": true})
	var cv *ContractViolation
	if !errors.As(err, &cv) {
		t.Fatalf("expected ContractViolation after retire, got %v", err)
	}
	if cv.Plugin != "auth" {
		t.Fatalf("violation should name the plugin, got %q", cv.Plugin)
	}
}
