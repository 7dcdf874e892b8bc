package hooks

import (
	"sync/atomic"

	language "github.com/hanpama/pluggraph/internal/language"
)

// shortCircuit is the early-return slot shared by the per-phase control
// handles. Once set, the orchestrator skips the remaining before-hooks
// of the phase and every phase not yet entered, then jumps to result
// emission.
type shortCircuit struct {
	result *language.ExecutionResult
	set    bool
}

// SetResult short-circuits the pipeline with res as the final result.
// A second call within the same phase overrides the first.
func (s *shortCircuit) SetResult(res *language.ExecutionResult) {
	s.result = res
	s.set = true
}

// ShortCircuited returns the override result, if any hook set one.
func (s *shortCircuit) ShortCircuited() (*language.ExecutionResult, bool) {
	return s.result, s.set
}

// SchemaControl is handed to OnSchemaChange when a schema is installed.
type SchemaControl struct {
	schema   *language.Schema
	replaced bool
}

func NewSchemaControl(schema *language.Schema) *SchemaControl {
	return &SchemaControl{schema: schema}
}

// Schema returns the schema being installed, including any replacement
// made by an earlier hook.
func (c *SchemaControl) Schema() *language.Schema { return c.schema }

// ReplaceSchema substitutes the schema the pipeline will use from now
// on. Later hooks observe the replacement.
func (c *SchemaControl) ReplaceSchema(schema *language.Schema) {
	c.schema = schema
	c.replaced = true
}

// Replaced returns the substituted schema, if any hook replaced it.
func (c *SchemaControl) Replaced() (*language.Schema, bool) {
	if !c.replaced {
		return nil, false
	}
	return c.schema, true
}

// ContextControl is handed to OnContextBuilding. It is the only handle
// through which the ExecutionContext may legally be extended, and it is
// retired when the phase completes: a hook that smuggles the handle out
// and extends later gets a ContractViolation, not a silent write.
type ContextControl struct {
	shortCircuit
	ec      *ExecutionContext
	plugin  string
	retired atomic.Bool
}

func NewContextControl(ec *ExecutionContext) *ContextControl {
	return &ContextControl{ec: ec}
}

// Context returns the request's execution context for reading.
func (c *ContextControl) Context() *ExecutionContext { return c.ec }

// ExtendContext merges partial into the execution context. Existing keys
// are overridden: the last writer in registration order wins.
func (c *ContextControl) ExtendContext(partial map[string]any) error {
	if c.retired.Load() {
		return &ContractViolation{
			Plugin: c.plugin,
			Kind:   KindContextBuilding,
			Action: "extendContext",
			Reason: "control handle used after context building completed",
		}
	}
	return c.ec.Extend(partial)
}

// SetPlugin attributes subsequent violations to the named plugin.
func (c *ContextControl) SetPlugin(name string) { c.plugin = name }

// Retire invalidates the handle. Called by the orchestrator when the
// context building phase ends.
func (c *ContextControl) Retire() { c.retired.Store(true) }

// ParseControl is handed to OnParse before the engine's parser runs.
type ParseControl struct {
	shortCircuit
	query string
	doc   *language.QueryDocument
}

func NewParseControl(query string) *ParseControl {
	return &ParseControl{query: query}
}

// Query returns the raw query text, including any replacement made by an
// earlier hook.
func (c *ParseControl) Query() string { return c.query }

// ReplaceQuery substitutes the raw text the parser will see.
func (c *ParseControl) ReplaceQuery(query string) { c.query = query }

// ProvideDocument supplies an already-parsed document, causing the
// engine's parser to be skipped entirely.
func (c *ParseControl) ProvideDocument(doc *language.QueryDocument) { c.doc = doc }

// ProvidedDocument returns the pre-supplied document, if any.
func (c *ParseControl) ProvidedDocument() (*language.QueryDocument, bool) {
	return c.doc, c.doc != nil
}

// ParseResultControl is handed to AfterParse callbacks.
type ParseResultControl struct {
	shortCircuit
	doc *language.QueryDocument
	err *language.Error
}

func NewParseResultControl(doc *language.QueryDocument, err *language.Error) *ParseResultControl {
	return &ParseResultControl{doc: doc, err: err}
}

// Document returns the parsed document, nil when parsing failed.
func (c *ParseResultControl) Document() *language.QueryDocument { return c.doc }

// Err returns the parse error, nil when parsing succeeded.
func (c *ParseResultControl) Err() *language.Error { return c.err }

// ReplaceDocument substitutes the document the remaining phases will
// use. A persisted-operation plugin uses this to swap a stored document
// in for a short id. Replacing also clears any parse error.
func (c *ParseResultControl) ReplaceDocument(doc *language.QueryDocument) {
	c.doc = doc
	c.err = nil
}

// ValidateControl is handed to OnValidate before validation runs.
type ValidateControl struct {
	shortCircuit
	schema *language.Schema
	doc    *language.QueryDocument
	rules  []ValidationRule
}

func NewValidateControl(schema *language.Schema, doc *language.QueryDocument) *ValidateControl {
	return &ValidateControl{schema: schema, doc: doc}
}

func (c *ValidateControl) Schema() *language.Schema          { return c.schema }
func (c *ValidateControl) Document() *language.QueryDocument { return c.doc }

// AddRule injects an additional validation rule. Injected rules are
// evaluated together with the engine's built-in rules; their errors are
// reported in one batch.
func (c *ValidateControl) AddRule(rule ValidationRule) {
	c.rules = append(c.rules, rule)
}

// Rules returns the injected rules in the order they were added.
func (c *ValidateControl) Rules() []ValidationRule { return c.rules }

// ValidateResultControl is handed to AfterValidate callbacks.
type ValidateResultControl struct {
	errs language.ErrorList
}

func NewValidateResultControl(errs language.ErrorList) *ValidateResultControl {
	return &ValidateResultControl{errs: errs}
}

// Errors returns the collected validation errors.
func (c *ValidateResultControl) Errors() language.ErrorList { return c.errs }

// ReplaceErrors rewrites the validation error batch.
func (c *ValidateResultControl) ReplaceErrors(errs language.ErrorList) { c.errs = errs }

// ExecuteControl is handed to OnExecute and OnSubscribe before the
// engine runs. It is the last point where the schema for this request
// can be replaced.
type ExecuteControl struct {
	shortCircuit
	ec            *ExecutionContext
	schema        *language.Schema
	doc           *language.QueryDocument
	operationName string
	variables     map[string]any
}

func NewExecuteControl(
	ec *ExecutionContext,
	schema *language.Schema,
	doc *language.QueryDocument,
	operationName string,
	variables map[string]any,
) *ExecuteControl {
	return &ExecuteControl{ec: ec, schema: schema, doc: doc, operationName: operationName, variables: variables}
}

func (c *ExecuteControl) Context() *ExecutionContext        { return c.ec }
func (c *ExecuteControl) Schema() *language.Schema          { return c.schema }
func (c *ExecuteControl) Document() *language.QueryDocument { return c.doc }
func (c *ExecuteControl) OperationName() string             { return c.operationName }

// Variables returns the caller-supplied variable values. Hooks must not
// mutate the map.
func (c *ExecuteControl) Variables() map[string]any { return c.variables }

// ReplaceSchema selects the schema the engine will execute against for
// this request only.
func (c *ExecuteControl) ReplaceSchema(schema *language.Schema) { c.schema = schema }

// ResultControl wraps a result under interception. After-callbacks and
// finalize hooks may mutate the result in place or replace it wholesale.
type ResultControl struct {
	result *language.ExecutionResult
}

func NewResultControl(result *language.ExecutionResult) *ResultControl {
	return &ResultControl{result: result}
}

// Result returns the current result. Never nil.
func (c *ResultControl) Result() *language.ExecutionResult { return c.result }

// SetResult replaces the result wholesale.
func (c *ResultControl) SetResult(result *language.ExecutionResult) {
	if result == nil {
		result = &language.ExecutionResult{}
	}
	c.result = result
}

// ResolverControl is handed to OnResolverCalled for a single field
// resolution.
type ResolverControl struct {
	middlewares []ResolverMiddleware
}

func NewResolverControl() *ResolverControl { return &ResolverControl{} }

// WrapResolver wraps (never replaces) the underlying resolver. Wrappers
// from multiple plugins compose like middleware: the first-registered
// plugin wraps first and therefore runs innermost.
func (c *ResolverControl) WrapResolver(mw ResolverMiddleware) {
	if mw != nil {
		c.middlewares = append(c.middlewares, mw)
	}
}

// Middlewares returns the collected wrappers in registration order.
func (c *ResolverControl) Middlewares() []ResolverMiddleware { return c.middlewares }
