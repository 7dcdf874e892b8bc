// Package pipeline fuses an ordered plugin list into one immutable
// pipeline of per-kind hook slices. Composition happens once, at startup
// or on hot reload, never per request: the fused pipeline holds no
// per-request state and is shared by all concurrent requests.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	hooks "github.com/hanpama/pluggraph/internal/hooks"
	language "github.com/hanpama/pluggraph/internal/language"
)

// Pipeline is the fused form of an ordered plugin list. Before-side
// slices are stored in registration order; the orchestrator walks
// after-side passes in reverse. Immutable after Compose.
type Pipeline struct {
	plugins []hooks.Plugin

	schemaChange    []hooks.SchemaChangeHook
	contextBuilding []hooks.ContextBuildingHook
	parse           []hooks.ParseHook
	validate        []hooks.ValidateHook
	execute         []hooks.ExecuteHook
	subscribe       []hooks.SubscribeHook
	resolver        []hooks.ResolverHook

	// finalize is the onExecuteDone chain in execution order: reverse
	// registration order with error maskers moved to the end, so masking
	// is always the last transform applied to outgoing errors.
	finalize []hooks.ExecuteDoneHook
}

// Compose builds a Pipeline from plugins, preserving registration order.
// It fails with *CompositionError on statically determinable contract
// problems; a failed composition must keep the previous pipeline (if
// any) serving.
func Compose(plugins ...hooks.Plugin) (*Pipeline, error) {
	p := &Pipeline{plugins: plugins}

	var exclusive []string
	var executeDone []hooks.ExecuteDoneHook

	for i, plugin := range plugins {
		if plugin == nil {
			return nil, &CompositionError{Reason: fmt.Sprintf("plugin at index %d is nil", i)}
		}
		if h, ok := plugin.(hooks.SchemaChangeHook); ok {
			p.schemaChange = append(p.schemaChange, h)
		}
		if h, ok := plugin.(hooks.ExclusiveSchemaOwner); ok {
			exclusive = append(exclusive, h.PluginName())
		}
		if h, ok := plugin.(hooks.ContextBuildingHook); ok {
			p.contextBuilding = append(p.contextBuilding, h)
		}
		if h, ok := plugin.(hooks.ParseHook); ok {
			p.parse = append(p.parse, h)
		}
		if h, ok := plugin.(hooks.ValidateHook); ok {
			p.validate = append(p.validate, h)
		}
		if h, ok := plugin.(hooks.ExecuteHook); ok {
			p.execute = append(p.execute, h)
		}
		if h, ok := plugin.(hooks.SubscribeHook); ok {
			p.subscribe = append(p.subscribe, h)
		}
		if h, ok := plugin.(hooks.ResolverHook); ok {
			p.resolver = append(p.resolver, h)
		}
		if h, ok := plugin.(hooks.ExecuteDoneHook); ok {
			executeDone = append(executeDone, h)
		}
	}

	if len(exclusive) > 1 {
		return nil, &CompositionError{
			Plugins: exclusive,
			Reason:  fmt.Sprintf("plugins %s all claim exclusive schema ownership", strings.Join(exclusive, ", ")),
		}
	}

	p.finalize = finalizeOrder(executeDone)
	return p, nil
}

// finalizeOrder reverses the registration order (last-registered plugin
// observes the result first) and moves maskers to the very end,
// preserving their relative order.
func finalizeOrder(executeDone []hooks.ExecuteDoneHook) []hooks.ExecuteDoneHook {
	ordered := make([]hooks.ExecuteDoneHook, 0, len(executeDone))
	var maskers []hooks.ExecuteDoneHook
	for i := len(executeDone) - 1; i >= 0; i-- {
		h := executeDone[i]
		if _, ok := h.(hooks.ErrorMasker); ok {
			maskers = append(maskers, h)
			continue
		}
		ordered = append(ordered, h)
	}
	return append(ordered, maskers...)
}

// Plugins returns the plugin list the pipeline was composed from.
func (p *Pipeline) Plugins() []hooks.Plugin { return p.plugins }

func (p *Pipeline) ContextBuilding() []hooks.ContextBuildingHook { return p.contextBuilding }
func (p *Pipeline) Parse() []hooks.ParseHook                     { return p.parse }
func (p *Pipeline) Validate() []hooks.ValidateHook               { return p.validate }
func (p *Pipeline) Execute() []hooks.ExecuteHook                 { return p.execute }
func (p *Pipeline) Subscribe() []hooks.SubscribeHook             { return p.subscribe }

// Finalize returns the onExecuteDone chain in execution order.
func (p *Pipeline) Finalize() []hooks.ExecuteDoneHook { return p.finalize }

// ApplySchemaChange notifies every schema-change hook in registration
// order and returns the schema the pipeline should use, which is the
// last replacement any hook made.
func (p *Pipeline) ApplySchemaChange(ctx context.Context, schema *language.Schema) *language.Schema {
	if len(p.schemaChange) == 0 {
		return schema
	}
	sc := hooks.NewSchemaControl(schema)
	for _, h := range p.schemaChange {
		h.OnSchemaChange(ctx, sc)
	}
	return sc.Schema()
}

// Intercept runs one field resolution through the resolver hooks. Hooks
// are consulted in registration order; the wrappers they contribute fold
// around next so that the last-registered plugin's wrapper executes
// outermost. A hook error fails the field, not the request.
func (p *Pipeline) Intercept(ctx context.Context, info *hooks.ResolveInfo, next hooks.FieldResolver) (any, error) {
	if len(p.resolver) == 0 {
		return next(ctx, info)
	}
	rc := hooks.NewResolverControl()
	for _, h := range p.resolver {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := h.OnResolverCalled(ctx, info, rc); err != nil {
			return nil, err
		}
	}
	wrapped := next
	for _, mw := range rc.Middlewares() {
		wrapped = mw(wrapped)
	}
	return wrapped(ctx, info)
}
