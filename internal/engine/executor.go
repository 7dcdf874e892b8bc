package engine

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	hooks "github.com/hanpama/pluggraph/internal/hooks"
	language "github.com/hanpama/pluggraph/internal/language"
)

// executionState holds the state during one operation's execution. The
// error list is shared across concurrently resolving fields and guarded
// by mu; everything else is read-only once execution starts.
type executionState struct {
	engine     *DefaultEngine
	schema     *language.Schema
	document   *language.QueryDocument
	variables  map[string]any
	execCtx    *hooks.ExecutionContext
	intercept  hooks.ResolverInterceptor
	concurrent bool

	mu     sync.Mutex
	errors language.ErrorList
}

func (s *executionState) addError(err *language.Error) {
	s.mu.Lock()
	s.errors = append(s.errors, err)
	s.mu.Unlock()
}

// hasErrorAtPath reports whether an error for the given path was already
// recorded, to avoid duplicate Non-Null violation reports.
func (s *executionState) hasErrorAtPath(path language.Path) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, err := range s.errors {
		if reflect.DeepEqual(err.Path, path) {
			return true
		}
	}
	return false
}

// executeSelectionSet resolves a grouped selection set against source.
// Sibling field groups fan out concurrently for query operations;
// response order always follows the query text.
func executeSelectionSet(ctx context.Context, state *executionState, objectType *language.Definition, selectionSet language.SelectionSet, source any, path language.Path) map[string]any {
	grouped := collectFields(state, objectType, selectionSet).orderedFields()
	results := make([]any, len(grouped))

	run := func(i int) {
		group := grouped[i]
		results[i] = executeFieldGroup(ctx, state, objectType, source, group, appendPath(path, language.PathName(group.ResponseName)))
	}
	if state.concurrent && len(grouped) > 1 {
		var wg sync.WaitGroup
		for i := range grouped {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				run(i)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range grouped {
			if ctx.Err() != nil {
				break
			}
			run(i)
		}
	}

	resultMap := make(map[string]any, len(grouped))
	for i, group := range grouped {
		if group.Fields[0].Name == "__typename" {
			resultMap[group.ResponseName] = results[i]
			continue
		}
		fieldDef := objectType.Fields.ForName(group.Fields[0].Name)
		if fieldDef == nil {
			// Error already recorded during resolution; omit the entry.
			continue
		}
		if fieldDef.Type.NonNull && isNullish(results[i]) {
			if len(path) > 0 {
				// Propagate the null to the nearest nullable ancestor.
				return nil
			}
			resultMap[group.ResponseName] = nil
			continue
		}
		if isNullish(results[i]) {
			resultMap[group.ResponseName] = nil
		} else {
			resultMap[group.ResponseName] = results[i]
		}
	}
	return resultMap
}

func executeFieldGroup(ctx context.Context, state *executionState, objectType *language.Definition, source any, group collectedField, path language.Path) any {
	field := group.Fields[0]

	if field.Name == "__typename" {
		return objectType.Name
	}

	fieldDef := objectType.Fields.ForName(field.Name)
	if fieldDef == nil {
		state.addError(language.Errorf(path, "Cannot query field '%s' on type '%s'", field.Name, objectType.Name))
		return nil
	}

	args, argErrs := coerceArguments(state, fieldDef, field.Arguments)
	for _, err := range argErrs {
		err.Path = path
		state.addError(err)
	}

	info := &hooks.ResolveInfo{
		ObjectType: objectType.Name,
		FieldName:  field.Name,
		Alias:      group.ResponseName,
		Source:     source,
		Args:       args,
		Path:       path,
		Context:    state.execCtx,
		Field:      field,
		Definition: fieldDef,
	}

	resolver := state.engine.resolvers.lookup(objectType.Name, field.Name)
	if resolver == nil {
		resolver = defaultFieldResolver
	}
	value, err := resolveWithIntercept(ctx, state, info, resolver)
	if err != nil {
		state.addError(language.WrapError(path, err))
		return nil
	}
	return completeValue(ctx, state, fieldDef.Type, group.Fields, value, path)
}

// resolveWithIntercept runs one field resolution through the pipeline
// interceptor, converting panics into resolver errors so one field
// cannot take down the request.
func resolveWithIntercept(ctx context.Context, state *executionState, info *hooks.ResolveInfo, resolver hooks.FieldResolver) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("resolver for %s.%s panicked: %v", info.ObjectType, info.FieldName, r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if state.intercept != nil {
		return state.intercept(ctx, info, resolver)
	}
	return resolver(ctx, info)
}

// completeValue completes a resolved value against its declared type.
func completeValue(ctx context.Context, state *executionState, fieldType *language.Type, fields []*language.Field, result any, path language.Path) any {
	if fieldType.NonNull {
		if isNullish(result) {
			if !state.hasErrorAtPath(path) {
				state.addError(language.Errorf(path, "Cannot return null for non-nullable field %s", pathString(path)))
			}
			return nil
		}
		inner := &language.Type{NamedType: fieldType.NamedType, Elem: fieldType.Elem}
		completed := completeValue(ctx, state, inner, fields, result, path)
		if isNullish(completed) {
			// Error already recorded at the original path; propagate only.
			return nil
		}
		return completed
	}

	if isNullish(result) {
		return nil
	}

	if fieldType.Elem != nil {
		return completeListValue(ctx, state, fieldType, fields, result, path)
	}

	def := state.schema.Types[fieldType.NamedType]
	if def == nil {
		state.addError(language.Errorf(path, "Unknown type: %s", fieldType.NamedType))
		return nil
	}

	switch def.Kind {
	case language.Scalar, language.Enum:
		serialized, err := serializeLeaf(def, result)
		if err != nil {
			state.addError(language.WrapError(path, err))
			return nil
		}
		return serialized
	case language.Object:
		return completeObjectValue(ctx, state, def, fields, result, path)
	case language.Interface, language.Union:
		return completeAbstractValue(ctx, state, def, fields, result, path)
	default:
		state.addError(language.Errorf(path, "Cannot complete value of unexpected kind: %s", def.Kind))
		return nil
	}
}

func completeListValue(ctx context.Context, state *executionState, listType *language.Type, fields []*language.Field, result any, path language.Path) any {
	var items []any
	if direct, ok := result.([]any); ok {
		items = direct
	} else {
		rv := reflect.ValueOf(result)
		if rv.Kind() != reflect.Slice {
			state.addError(language.Errorf(path, "Expected list value, got %T", result))
			return nil
		}
		items = make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items[i] = rv.Index(i).Interface()
		}
	}

	inner := listType.Elem
	completed := make([]any, len(items))
	for i, item := range items {
		v := completeValue(ctx, state, inner, fields, item, appendPath(path, language.PathIndex(i)))
		if inner.NonNull && isNullish(v) {
			// A null element nullifies the whole list value; the inner
			// completion already recorded the error.
			return nil
		}
		completed[i] = v
	}
	return completed
}

func completeObjectValue(ctx context.Context, state *executionState, objectType *language.Definition, fields []*language.Field, result any, path language.Path) any {
	return executeSelectionSet(ctx, state, objectType, mergeSelectionSets(fields), result, path)
}

func completeAbstractValue(ctx context.Context, state *executionState, abstractType *language.Definition, fields []*language.Field, result any, path language.Path) any {
	typeName, err := resolveConcreteType(ctx, state, abstractType.Name, result)
	if err != nil {
		state.addError(language.WrapError(path, err))
		return nil
	}
	objectType := state.schema.Types[typeName]
	if objectType == nil || objectType.Kind != language.Object {
		state.addError(language.Errorf(path, "Abstract type %s must resolve to an Object type at runtime, got %q", abstractType.Name, typeName))
		return nil
	}
	if !typeApplies(state.schema, objectType, abstractType.Name) {
		state.addError(language.Errorf(path, "%q is not a possible type of %s", typeName, abstractType.Name))
		return nil
	}
	return completeObjectValue(ctx, state, objectType, fields, result, path)
}

// resolveConcreteType consults the registered TypeResolver and falls
// back to a "__typename" key on map values.
func resolveConcreteType(ctx context.Context, state *executionState, abstractType string, value any) (string, error) {
	if resolver := state.engine.resolvers.typeResolver(abstractType); resolver != nil {
		return resolver(ctx, value)
	}
	if m, ok := value.(map[string]any); ok {
		if name, ok := m["__typename"].(string); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("cannot determine concrete type for abstract type %s", abstractType)
}

func serializeLeaf(def *language.Definition, value any) (any, error) {
	if def.Kind == language.Enum {
		switch v := value.(type) {
		case string:
			return v, nil
		case fmt.Stringer:
			return v.String(), nil
		default:
			return nil, fmt.Errorf("cannot serialize %T as enum %s", value, def.Name)
		}
	}
	switch def.Name {
	case "Int":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return v, nil
		case float64:
			return int64(v), nil
		default:
			return nil, fmt.Errorf("cannot serialize %T as Int", value)
		}
	case "Float":
		switch v := value.(type) {
		case float32, float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		default:
			return nil, fmt.Errorf("cannot serialize %T as Float", value)
		}
	case "Boolean":
		if v, ok := value.(bool); ok {
			return v, nil
		}
		return nil, fmt.Errorf("cannot serialize %T as Boolean", value)
	case "String", "ID":
		switch v := value.(type) {
		case string:
			return v, nil
		case fmt.Stringer:
			return v.String(), nil
		case int, int64, float64:
			if def.Name == "ID" {
				return fmt.Sprint(v), nil
			}
			return nil, fmt.Errorf("cannot serialize %T as String", value)
		default:
			return nil, fmt.Errorf("cannot serialize %T as %s", value, def.Name)
		}
	default:
		// Custom scalars pass through; their wire form is the resolver's
		// concern.
		return value, nil
	}
}

func pathString(path language.Path) string {
	return path.String()
}

func appendPath(path language.Path, elem any) language.Path {
	newPath := make(language.Path, len(path)+1)
	copy(newPath, path)
	switch e := elem.(type) {
	case language.PathName:
		newPath[len(path)] = e
	case language.PathIndex:
		newPath[len(path)] = e
	case string:
		newPath[len(path)] = language.PathName(e)
	case int:
		newPath[len(path)] = language.PathIndex(e)
	}
	return newPath
}

// mergeSelectionSets merges the sub-selections of merged field nodes.
func mergeSelectionSets(fields []*language.Field) language.SelectionSet {
	var merged language.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}

// isNullish returns true for nil interfaces and typed nils.
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
