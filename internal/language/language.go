package language

import (
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
)

// ParseQuery parses a GraphQL executable document. The returned error,
// when non-nil, is a *Error carrying source locations.
func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadSchema builds a usable schema from SDL sources.
func LoadSchema(sources ...*Source) (*Schema, error) {
	return gqlparser.LoadSchema(sources...)
}

// MustLoadSchema is LoadSchema for static SDL; it panics on error.
func MustLoadSchema(sdl string) *Schema {
	return gqlparser.MustLoadSchema(&ast.Source{Input: sdl})
}

// Validate runs the built-in validation rules for doc against schema.
func Validate(schema *Schema, doc *QueryDocument) ErrorList {
	return validator.Validate(schema, doc)
}

// VariableValues coerces raw variable values against the operation's
// variable definitions. The underlying coercion dereferences each
// definition's resolved type, which the parser leaves unbound, so
// definitions are bound against the schema here first; the document
// does not need to have gone through Validate.
func VariableValues(schema *Schema, op *OperationDefinition, variables map[string]any) (map[string]any, error) {
	for _, vd := range op.VariableDefinitions {
		if vd.Definition == nil {
			vd.Definition = schema.Types[vd.Type.Name()]
		}
		if vd.Definition == nil {
			return nil, gqlerror.Errorf("variable $%s has unknown type %s", vd.Variable, vd.Type.Name())
		}
	}
	coerced, err := validator.VariableValues(schema, op, variables)
	if err != nil {
		return nil, err
	}
	return coerced, nil
}

// ExecutionResult is the outcome of one request: partially or fully
// resolved data plus any errors collected along the way.
type ExecutionResult struct {
	Data   any       `json:"data"`
	Errors ErrorList `json:"errors,omitempty"`
}

// Errorf builds a located execution error at the given response path.
func Errorf(path Path, format string, args ...any) *Error {
	err := gqlerror.Errorf(format, args...)
	err.Path = path
	return err
}

// WrapError converts err into a *Error at path, preserving the original
// error for unwrapping. Errors that already are *Error keep their
// locations and extensions; only a missing path is filled in.
func WrapError(path Path, err error) *Error {
	if err == nil {
		return nil
	}
	if gerr, ok := err.(*Error); ok {
		if gerr.Path == nil {
			gerr.Path = path
		}
		return gerr
	}
	return &Error{Err: err, Message: err.Error(), Path: path}
}
