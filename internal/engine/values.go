package engine

import (
	language "github.com/hanpama/pluggraph/internal/language"
)

// coerceArguments produces the Go argument values for one field, with
// variable substitution and schema defaults. Validation has already
// checked types; coercion failures here still surface as located errors
// rather than panics.
func coerceArguments(state *executionState, fieldDef *language.FieldDefinition, arguments language.ArgumentList) (map[string]any, language.ErrorList) {
	coerced := make(map[string]any, len(fieldDef.Arguments))
	var errs language.ErrorList

	for _, argDef := range fieldDef.Arguments {
		arg := arguments.ForName(argDef.Name)
		if arg != nil {
			value, err := arg.Value.Value(state.variables)
			if err != nil {
				errs = append(errs, language.WrapError(nil, err))
				continue
			}
			if value == nil && argDef.Type.NonNull {
				if argDef.DefaultValue != nil {
					if def, derr := argDef.DefaultValue.Value(nil); derr == nil {
						coerced[argDef.Name] = def
						continue
					}
				}
				errs = append(errs, language.Errorf(nil, "argument '%s' of required type %s was not provided", argDef.Name, argDef.Type.String()))
				continue
			}
			coerced[argDef.Name] = value
			continue
		}
		if argDef.DefaultValue != nil {
			value, err := argDef.DefaultValue.Value(nil)
			if err != nil {
				errs = append(errs, language.WrapError(nil, err))
				continue
			}
			coerced[argDef.Name] = value
			continue
		}
		if argDef.Type.NonNull {
			errs = append(errs, language.Errorf(nil, "argument '%s' of required type %s was not provided", argDef.Name, argDef.Type.String()))
		}
	}
	return coerced, errs
}
