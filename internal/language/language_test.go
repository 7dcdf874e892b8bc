package language

import (
	"errors"
	"testing"
)

func TestParseQueryReportsLocation(t *testing.T) {
	_, err := ParseQuery(`{ hello`)
	if err == nil {
		t.Fatal("expected parse error")
	}
	gerr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if len(gerr.Locations) == 0 {
		t.Fatalf("parse error should carry a location: %v", gerr)
	}
}

func TestValidateCatchesUnknownField(t *testing.T) {
	schema := MustLoadSchema(`type Query { hello: String }`)
	doc, err := ParseQuery(`{ nope }`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	errs := Validate(schema, doc)
	if len(errs) == 0 {
		t.Fatal("expected validation error for unknown field")
	}
}

func TestVariableValuesCoercion(t *testing.T) {
	schema := MustLoadSchema(`type Query { n(by: Int!): Int }`)
	doc, err := ParseQuery(`query($by: Int!) { n(by: $by) }`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	vals, err := VariableValues(schema, doc.Operations[0], map[string]any{"by": 3})
	if err != nil {
		t.Fatalf("VariableValues: %v", err)
	}
	if vals["by"] != int64(3) && vals["by"] != 3 {
		t.Fatalf("unexpected coercion: %v (%T)", vals["by"], vals["by"])
	}

	if _, err := VariableValues(schema, doc.Operations[0], map[string]any{"by": "oops"}); err == nil {
		t.Fatal("expected coercion error for wrong type")
	}
}

// Coercion must work on a parsed-but-unvalidated document: the parser
// leaves variable definitions unbound and VariableValues binds them
// itself.
func TestVariableValuesOnUnvalidatedDocument(t *testing.T) {
	schema := MustLoadSchema(`type Query { n(ids: [ID!]!): Int }`)
	doc, err := ParseQuery(`query($ids: [ID!]!) { n(ids: $ids) }`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Operations[0].VariableDefinitions[0].Definition != nil {
		t.Fatal("test premise broken: parser now binds definitions")
	}
	vals, err := VariableValues(schema, doc.Operations[0], map[string]any{"ids": []any{"a", "b"}})
	if err != nil {
		t.Fatalf("VariableValues: %v", err)
	}
	if ids, ok := vals["ids"].([]any); !ok || len(ids) != 2 {
		t.Fatalf("unexpected coercion: %v (%T)", vals["ids"], vals["ids"])
	}

	badDoc, err := ParseQuery(`query($x: Missing!) { n(ids: []) }`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := VariableValues(schema, badDoc.Operations[0], map[string]any{"x": 1}); err == nil {
		t.Fatal("expected error for variable of unknown type")
	}
}

func TestErrorfCarriesPath(t *testing.T) {
	path := Path{PathName("user"), PathIndex(0)}
	err := Errorf(path, "broken %s", "badly")
	if err.Message != "broken badly" {
		t.Fatalf("unexpected message %q", err.Message)
	}
	if err.Path.String() != "user[0]" {
		t.Fatalf("unexpected path %q", err.Path.String())
	}
}

func TestWrapErrorPreservesOriginal(t *testing.T) {
	base := errors.New("backend down")
	gerr := WrapError(Path{PathName("f")}, base)
	if !errors.Is(gerr, base) {
		t.Fatal("wrapped error should unwrap to the original")
	}
	if gerr.Message != "backend down" {
		t.Fatalf("unexpected message %q", gerr.Message)
	}

	// An existing *Error keeps its fields; only a missing path is filled.
	located := Errorf(nil, "already located")
	again := WrapError(Path{PathName("g")}, located)
	if again != located || again.Path.String() != "g" {
		t.Fatalf("expected path fill-in on existing error, got %v at %q", again, again.Path.String())
	}
	if WrapError(nil, nil) != nil {
		t.Fatal("nil error should stay nil")
	}
}
