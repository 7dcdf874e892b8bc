package hooks

import (
	"context"

	language "github.com/hanpama/pluggraph/internal/language"
)

// FieldResolver produces the raw value for one field resolution. The
// engine completes the value (lists, leafs, nested selection sets)
// afterwards; resolvers return Go values, not response fragments.
type FieldResolver func(ctx context.Context, info *ResolveInfo) (any, error)

// ResolverMiddleware wraps a FieldResolver, middleware style. It must
// call next (directly or indirectly) unless it is deliberately
// suppressing the field with an error.
type ResolverMiddleware func(next FieldResolver) FieldResolver

// ResolverInterceptor is installed by the pipeline into the engine and
// invoked around every field resolution. It consults the registered
// ResolverHooks, folds their wrappers around next, and runs the result.
type ResolverInterceptor func(ctx context.Context, info *ResolveInfo, next FieldResolver) (any, error)

// ResolveInfo describes one field resolution.
type ResolveInfo struct {
	// ObjectType is the GraphQL type name owning the field ("Query" for
	// root fields).
	ObjectType string
	// FieldName is the schema field name; Alias the response key.
	FieldName string
	Alias     string
	// Source is the parent object value, nil for root fields.
	Source any
	// Args are the coerced argument values.
	Args map[string]any
	// Path is the response path of this field.
	Path language.Path
	// Context is the request's execution context. Frozen by the time any
	// resolver runs; concurrent reads are safe.
	Context *ExecutionContext
	// Field and Definition expose the AST node and schema definition for
	// hooks that need selection or type detail.
	Field      *language.Field
	Definition *language.FieldDefinition
}
