package maxtokens

import (
	"context"
	"strings"
	"testing"

	hooks "github.com/hanpama/pluggraph/internal/hooks"
)

func TestUnderLimitPasses(t *testing.T) {
	p := New(WithLimit(10))
	pc := hooks.NewParseControl(`{ hello }`)
	if _, err := p.OnParse(context.Background(), pc); err != nil {
		t.Fatalf("OnParse: %v", err)
	}
	if _, circuited := pc.ShortCircuited(); circuited {
		t.Fatalf("small document should not be rejected")
	}
}

func TestOverLimitShortCircuits(t *testing.T) {
	p := New(WithLimit(5))
	query := "{ " + strings.Repeat("a ", 10) + "}"
	pc := hooks.NewParseControl(query)
	if _, err := p.OnParse(context.Background(), pc); err != nil {
		t.Fatalf("OnParse: %v", err)
	}
	res, circuited := pc.ShortCircuited()
	if !circuited {
		t.Fatalf("oversized document not rejected")
	}
	if len(res.Errors) != 1 || res.Errors[0].Message != "Token limit of 5 exceeded." {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if res.Data != nil {
		t.Fatalf("rejected document must carry no data")
	}
}

func TestLexErrorIsLeftToParser(t *testing.T) {
	p := New(WithLimit(5))
	pc := hooks.NewParseControl("{ \x00 }")
	if _, err := p.OnParse(context.Background(), pc); err != nil {
		t.Fatalf("OnParse: %v", err)
	}
	if _, circuited := pc.ShortCircuited(); circuited {
		t.Fatalf("lex errors belong to the parser, not the limiter")
	}
}
