package engine

import (
	"context"
	"fmt"
	"sync"

	hooks "github.com/hanpama/pluggraph/internal/hooks"
)

// TypeResolver determines the concrete object type name for a value of
// an abstract (interface or union) type.
type TypeResolver func(ctx context.Context, value any) (string, error)

// SubscriptionSource opens the event stream backing a subscription root
// field. The engine completes each emitted event against the selection
// set.
type SubscriptionSource func(ctx context.Context, info *hooks.ResolveInfo) (<-chan any, error)

// Resolvers is the registry the default engine executes against.
// Registration happens at startup; the registry is read-only afterwards
// and safe for concurrent use. Fields without a registered resolver fall
// back to map and struct-free source lookup by field name.
type Resolvers struct {
	mu      sync.RWMutex
	fields  map[string]hooks.FieldResolver
	types   map[string]TypeResolver
	sources map[string]SubscriptionSource
}

func NewResolvers() *Resolvers {
	return &Resolvers{
		fields:  make(map[string]hooks.FieldResolver),
		types:   make(map[string]TypeResolver),
		sources: make(map[string]SubscriptionSource),
	}
}

// Field registers the resolver for objectType.field. Chainable.
func (r *Resolvers) Field(objectType, field string, fn hooks.FieldResolver) *Resolvers {
	r.mu.Lock()
	r.fields[objectType+"."+field] = fn
	r.mu.Unlock()
	return r
}

// Abstract registers the concrete-type resolver for an interface or
// union type. Chainable.
func (r *Resolvers) Abstract(abstractType string, fn TypeResolver) *Resolvers {
	r.mu.Lock()
	r.types[abstractType] = fn
	r.mu.Unlock()
	return r
}

// Source registers the event stream for a subscription root field.
// Chainable.
func (r *Resolvers) Source(field string, fn SubscriptionSource) *Resolvers {
	r.mu.Lock()
	r.sources[field] = fn
	r.mu.Unlock()
	return r
}

func (r *Resolvers) lookup(objectType, field string) hooks.FieldResolver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fields[objectType+"."+field]
}

func (r *Resolvers) typeResolver(abstractType string) TypeResolver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types[abstractType]
}

func (r *Resolvers) subscriptionSource(field string) SubscriptionSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[field]
}

// defaultFieldResolver reads the field straight off a map source.
// A nil source yields GraphQL null.
func defaultFieldResolver(ctx context.Context, info *hooks.ResolveInfo) (any, error) {
	switch src := info.Source.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return src[info.FieldName], nil
	default:
		return nil, fmt.Errorf("no resolver registered for %s.%s and source %T is not a map", info.ObjectType, info.FieldName, info.Source)
	}
}
