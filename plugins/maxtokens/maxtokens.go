// Package maxtokens rejects oversized documents before the parser runs.
// The raw query is scanned with the GraphQL lexer and the request is
// short-circuited once the token count exceeds the configured limit, so
// no parsing, validation or resolution work is spent on it.
package maxtokens

import (
	"context"

	"github.com/vektah/gqlparser/v2/lexer"

	hooks "github.com/hanpama/pluggraph/internal/hooks"
	language "github.com/hanpama/pluggraph/internal/language"
)

// DefaultLimit is used when no limit option is given.
const DefaultLimit = 1000

type Plugin struct {
	limit int
}

type Option func(*Plugin)

// WithLimit sets the maximum number of lexer tokens a document may have.
func WithLimit(n int) Option {
	return func(p *Plugin) { p.limit = n }
}

func New(opts ...Option) *Plugin {
	p := &Plugin{limit: DefaultLimit}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Plugin) PluginName() string { return "maxtokens" }

func (p *Plugin) OnParse(ctx context.Context, pc *hooks.ParseControl) (hooks.AfterParse, error) {
	lex := lexer.New(&language.Source{Input: pc.Query()})
	count := 0
	for {
		tok, err := lex.ReadToken()
		if err != nil {
			// A lexing error will surface from the parser with proper
			// locations; don't duplicate it here.
			return nil, nil
		}
		if tok.Kind == lexer.EOF {
			return nil, nil
		}
		count++
		if count > p.limit {
			pc.SetResult(&language.ExecutionResult{
				Errors: language.ErrorList{
					language.Errorf(nil, "Token limit of %d exceeded.", p.limit),
				},
			})
			return nil, nil
		}
	}
}
