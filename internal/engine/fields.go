package engine

import (
	language "github.com/hanpama/pluggraph/internal/language"
)

// collectedFieldMap preserves field order from the query text.
type collectedFieldMap struct {
	fields []collectedField
	index  map[string]int
}

type collectedField struct {
	ResponseName string
	Fields       []*language.Field
}

func newCollectedFieldMap() *collectedFieldMap {
	return &collectedFieldMap{index: make(map[string]int)}
}

func (cfm *collectedFieldMap) add(responseName string, field *language.Field) {
	if idx, exists := cfm.index[responseName]; exists {
		cfm.fields[idx].Fields = append(cfm.fields[idx].Fields, field)
		return
	}
	cfm.index[responseName] = len(cfm.fields)
	cfm.fields = append(cfm.fields, collectedField{
		ResponseName: responseName,
		Fields:       []*language.Field{field},
	})
}

func (cfm *collectedFieldMap) orderedFields() []collectedField {
	return cfm.fields
}

// collectFields groups a selection set by response name, expanding
// fragments and honoring @skip/@include.
func collectFields(state *executionState, objectType *language.Definition, selectionSet language.SelectionSet) *collectedFieldMap {
	grouped := newCollectedFieldMap()
	visited := make(map[string]bool)
	collectFieldsImpl(state, objectType, selectionSet, grouped, visited)
	return grouped
}

func collectFieldsImpl(state *executionState, objectType *language.Definition, selectionSet language.SelectionSet, grouped *collectedFieldMap, visitedFragments map[string]bool) {
	for _, selection := range selectionSet {
		switch sel := selection.(type) {
		case *language.Field:
			if !shouldIncludeNode(state, sel.Directives) {
				continue
			}
			responseName := sel.Alias
			if responseName == "" {
				responseName = sel.Name
			}
			grouped.add(responseName, sel)

		case *language.InlineFragment:
			if !shouldIncludeNode(state, sel.Directives) {
				continue
			}
			if sel.TypeCondition != "" && !typeApplies(state.schema, objectType, sel.TypeCondition) {
				continue
			}
			collectFieldsImpl(state, objectType, sel.SelectionSet, grouped, visitedFragments)

		case *language.FragmentSpread:
			if !shouldIncludeNode(state, sel.Directives) {
				continue
			}
			if visitedFragments[sel.Name] {
				continue
			}
			visitedFragments[sel.Name] = true

			fragment := state.document.Fragments.ForName(sel.Name)
			if fragment == nil {
				continue
			}
			if fragment.TypeCondition != "" && !typeApplies(state.schema, objectType, fragment.TypeCondition) {
				continue
			}
			if !shouldIncludeNode(state, fragment.Directives) {
				continue
			}
			collectFieldsImpl(state, objectType, fragment.SelectionSet, grouped, visitedFragments)
		}
	}
}

// typeApplies reports whether a fragment type condition matches the
// object type currently being executed, directly or through an
// interface/union the object belongs to.
func typeApplies(schema *language.Schema, objectType *language.Definition, condition string) bool {
	if condition == objectType.Name {
		return true
	}
	for _, def := range schema.Implements[objectType.Name] {
		if def.Name == condition {
			return true
		}
	}
	return false
}

// shouldIncludeNode evaluates @skip and @include against the current
// variable values.
func shouldIncludeNode(state *executionState, directives language.DirectiveList) bool {
	if skip := directives.ForName("skip"); skip != nil {
		if v, ok := directiveBoolArgument(state, skip, "if"); ok && v {
			return false
		}
	}
	if include := directives.ForName("include"); include != nil {
		if v, ok := directiveBoolArgument(state, include, "if"); ok && !v {
			return false
		}
	}
	return true
}

func directiveBoolArgument(state *executionState, directive *language.Directive, name string) (bool, bool) {
	arg := directive.Arguments.ForName(name)
	if arg == nil {
		return false, false
	}
	value, err := arg.Value.Value(state.variables)
	if err != nil {
		return false, false
	}
	b, ok := value.(bool)
	return b, ok
}
