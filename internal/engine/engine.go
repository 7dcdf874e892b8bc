package engine

import (
	"context"
	"fmt"

	hooks "github.com/hanpama/pluggraph/internal/hooks"
	language "github.com/hanpama/pluggraph/internal/language"
)

// Params carries everything one execution needs. Schema may differ from
// the pipeline's default when a hook replaced it for this request.
type Params struct {
	Schema        *language.Schema
	Document      *language.QueryDocument
	OperationName string
	Variables     map[string]any

	// Context is the request's (frozen) execution context, exposed to
	// resolvers through ResolveInfo.
	Context *hooks.ExecutionContext

	// Interceptor, when non-nil, is invoked around every field
	// resolution.
	Interceptor hooks.ResolverInterceptor
}

// Engine is the capability set the orchestrator drives. Implementations
// must be safe for concurrent use across requests.
type Engine interface {
	// Parse turns raw query text into a document. The error carries
	// source locations.
	Parse(ctx context.Context, query string) (*language.QueryDocument, *language.Error)

	// Validate checks doc against schema with the built-in rules merged
	// with extra plugin-injected rules, reporting all failures in one
	// batch.
	Validate(ctx context.Context, schema *language.Schema, doc *language.QueryDocument, extra []hooks.ValidationRule) language.ErrorList

	// Execute runs a query or mutation operation to completion.
	Execute(ctx context.Context, p Params) *language.ExecutionResult

	// Subscribe opens a subscription stream. The returned channel closes
	// when the source closes or ctx is done.
	Subscribe(ctx context.Context, p Params) (<-chan *language.ExecutionResult, error)
}

// DefaultEngine executes against a resolver registry.
type DefaultEngine struct {
	resolvers    *Resolvers
	serialFields bool
}

type Option func(*DefaultEngine)

// WithSerialFields disables concurrent sibling resolution for query
// operations. Mutations are always serial.
func WithSerialFields() Option {
	return func(e *DefaultEngine) { e.serialFields = true }
}

// New creates an engine over the given resolver registry.
func New(resolvers *Resolvers, opts ...Option) *DefaultEngine {
	if resolvers == nil {
		resolvers = NewResolvers()
	}
	e := &DefaultEngine{resolvers: resolvers}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *DefaultEngine) Parse(ctx context.Context, query string) (*language.QueryDocument, *language.Error) {
	doc, err := language.ParseQuery(query)
	if err != nil {
		if gerr, ok := err.(*language.Error); ok {
			return nil, gerr
		}
		return nil, &language.Error{Err: err, Message: err.Error()}
	}
	return doc, nil
}

func (e *DefaultEngine) Validate(ctx context.Context, schema *language.Schema, doc *language.QueryDocument, extra []hooks.ValidationRule) language.ErrorList {
	errs := language.Validate(schema, doc)
	for _, rule := range extra {
		errs = append(errs, rule(schema, doc)...)
	}
	return errs
}

func (e *DefaultEngine) Execute(ctx context.Context, p Params) *language.ExecutionResult {
	operation := getOperation(p.Document, p.OperationName)
	if operation == nil {
		return &language.ExecutionResult{Errors: language.ErrorList{language.Errorf(nil, "operation not found")}}
	}

	variables, err := language.VariableValues(p.Schema, operation, p.Variables)
	if err != nil {
		return &language.ExecutionResult{Errors: language.ErrorList{language.WrapError(nil, err)}}
	}

	var rootType *language.Definition
	switch operation.Operation {
	case language.Query:
		rootType = p.Schema.Query
	case language.Mutation:
		rootType = p.Schema.Mutation
	default:
		return &language.ExecutionResult{Errors: language.ErrorList{language.Errorf(nil, "unsupported operation type: %s", operation.Operation)}}
	}
	if rootType == nil {
		return &language.ExecutionResult{Errors: language.ErrorList{language.Errorf(nil, "schema defines no %s root type", operation.Operation)}}
	}

	state := &executionState{
		engine:     e,
		schema:     p.Schema,
		document:   p.Document,
		variables:  variables,
		execCtx:    p.Context,
		intercept:  p.Interceptor,
		concurrent: operation.Operation == language.Query && !e.serialFields,
	}

	data := executeSelectionSet(ctx, state, rootType, operation.SelectionSet, nil, nil)
	return &language.ExecutionResult{Data: data, Errors: state.errors}
}

func (e *DefaultEngine) Subscribe(ctx context.Context, p Params) (<-chan *language.ExecutionResult, error) {
	operation := getOperation(p.Document, p.OperationName)
	if operation == nil {
		return nil, fmt.Errorf("operation not found")
	}
	if operation.Operation != language.Subscription {
		return nil, fmt.Errorf("operation %q is not a subscription", operation.Name)
	}
	rootType := p.Schema.Subscription
	if rootType == nil {
		return nil, fmt.Errorf("schema defines no subscription root type")
	}

	variables, verr := language.VariableValues(p.Schema, operation, p.Variables)
	if verr != nil {
		return nil, verr
	}

	state := &executionState{
		engine:    e,
		schema:    p.Schema,
		document:  p.Document,
		variables: variables,
		execCtx:   p.Context,
		intercept: p.Interceptor,
	}

	groups := collectFields(state, rootType, operation.SelectionSet)
	ordered := groups.orderedFields()
	if len(ordered) != 1 {
		return nil, fmt.Errorf("subscription must select exactly one root field, got %d", len(ordered))
	}
	group := ordered[0]
	field := group.Fields[0]
	fieldDef := rootType.Fields.ForName(field.Name)
	if fieldDef == nil {
		return nil, fmt.Errorf("cannot subscribe to unknown field %q", field.Name)
	}

	args, argErrs := coerceArguments(state, fieldDef, field.Arguments)
	if len(argErrs) > 0 {
		return nil, argErrs[0]
	}
	info := &hooks.ResolveInfo{
		ObjectType: rootType.Name,
		FieldName:  field.Name,
		Alias:      group.ResponseName,
		Args:       args,
		Path:       language.Path{language.PathName(group.ResponseName)},
		Context:    p.Context,
		Field:      field,
		Definition: fieldDef,
	}

	source := e.resolvers.subscriptionSource(field.Name)
	if source == nil {
		return nil, fmt.Errorf("no subscription source registered for %q", field.Name)
	}
	stream, err := source(ctx, info)
	if err != nil {
		return nil, err
	}

	out := make(chan *language.ExecutionResult)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-stream:
				if !ok {
					return
				}
				res := e.executeSubscriptionEvent(ctx, p, variables, rootType, group, fieldDef, info, event)
				select {
				case out <- res:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// executeSubscriptionEvent completes one source event into a result.
// Each event gets a fresh error list, so a failing event does not
// poison the stream, but it keeps the variables coerced at Subscribe
// time: nested directives and arguments evaluate against them.
func (e *DefaultEngine) executeSubscriptionEvent(
	ctx context.Context,
	p Params,
	variables map[string]any,
	rootType *language.Definition,
	group collectedField,
	fieldDef *language.FieldDefinition,
	info *hooks.ResolveInfo,
	event any,
) *language.ExecutionResult {
	state := &executionState{
		engine:    e,
		schema:    p.Schema,
		document:  p.Document,
		variables: variables,
		execCtx:   p.Context,
		intercept: p.Interceptor,
	}
	path := language.Path{language.PathName(group.ResponseName)}

	// The event is the raw field value unless a resolver is registered
	// to transform it.
	value := event
	if resolver := e.resolvers.lookup(rootType.Name, fieldDef.Name); resolver != nil {
		eventInfo := *info
		eventInfo.Source = event
		v, err := resolveWithIntercept(ctx, state, &eventInfo, resolver)
		if err != nil {
			return &language.ExecutionResult{Data: nil, Errors: language.ErrorList{language.WrapError(path, err)}}
		}
		value = v
	}

	completed := completeValue(ctx, state, fieldDef.Type, group.Fields, value, path)
	data := map[string]any{group.ResponseName: completed}
	if fieldDef.Type.NonNull && isNullish(completed) {
		data = nil
	}
	return &language.ExecutionResult{Data: data, Errors: state.errors}
}

// getOperation retrieves the operation from the document.
func getOperation(document *language.QueryDocument, operationName string) *language.OperationDefinition {
	if document == nil {
		return nil
	}
	if operationName == "" && len(document.Operations) == 1 {
		return document.Operations[0]
	}
	return document.Operations.ForName(operationName)
}
