package hooks

import (
	"context"

	language "github.com/hanpama/pluggraph/internal/language"
)

// Plugin is the identity every hook-bearing unit must provide. The name
// is used for diagnostics and composition errors only; it carries no
// ordering semantics. Plugins are immutable once composed.
type Plugin interface {
	PluginName() string
}

// HookKind enumerates the fixed set of lifecycle extension points.
type HookKind int

const (
	KindSchemaChange HookKind = iota
	KindContextBuilding
	KindParse
	KindValidate
	KindExecute
	KindSubscribe
	KindResolverCalled
	KindExecuteDone
)

var kindNames = [...]string{
	"onSchemaChange",
	"onContextBuilding",
	"onParse",
	"onValidate",
	"onExecute",
	"onSubscribe",
	"onResolverCalled",
	"onExecuteDone",
}

func (k HookKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// BestEffortAfter reports whether a failing after-side callback of this
// kind lets the remaining after-callbacks run anyway. Result-transforming
// after sides are not best-effort: a half-applied transform is worse than
// a loud failure. The finalize pass is observational and therefore is.
func (k HookKind) BestEffortAfter() bool {
	return k == KindExecuteDone
}

// SchemaChangeHook is notified whenever a schema is installed, including
// the initial installation and every hot reload. It may substitute the
// schema the pipeline will use from then on.
type SchemaChangeHook interface {
	Plugin
	OnSchemaChange(ctx context.Context, sc *SchemaControl)
}

// ExclusiveSchemaOwner marks a SchemaChangeHook that claims sole
// ownership of schema replacement. Composing two exclusive owners fails
// at build time.
type ExclusiveSchemaOwner interface {
	SchemaChangeHook
	ExclusiveSchema()
}

// ContextBuildingHook extends the per-request ExecutionContext. Hooks run
// in registration order; later writers win on key conflicts.
type ContextBuildingHook interface {
	Plugin
	OnContextBuilding(ctx context.Context, cc *ContextControl) error
}

// AfterParse inspects or replaces the parse outcome. Callbacks run in
// reverse registration order.
type AfterParse func(ctx context.Context, pc *ParseResultControl) error

// ParseHook runs before the engine's parser. It may supply a document of
// its own (persisted-operation lookup), short-circuit, or return an
// AfterParse callback.
type ParseHook interface {
	Plugin
	OnParse(ctx context.Context, pc *ParseControl) (AfterParse, error)
}

// ValidationRule is an additional validation pass merged with the
// engine's built-in rules and evaluated together with them.
type ValidationRule func(schema *language.Schema, doc *language.QueryDocument) language.ErrorList

// AfterValidate observes the collected validation errors and may rewrite
// them. Callbacks run in reverse registration order.
type AfterValidate func(ctx context.Context, vc *ValidateResultControl) error

// ValidateHook runs before validation and may inject extra rules.
type ValidateHook interface {
	Plugin
	OnValidate(ctx context.Context, vc *ValidateControl) (AfterValidate, error)
}

// AfterExecute intercepts the execution result. Callbacks run in reverse
// registration order, so the last-registered plugin transforms first.
type AfterExecute func(ctx context.Context, rc *ResultControl) error

// ExecuteHook runs before the engine executes a query or mutation. It is
// the last point at which the schema for this request can be replaced.
type ExecuteHook interface {
	Plugin
	OnExecute(ctx context.Context, ec *ExecuteControl) (AfterExecute, error)
}

// AfterSubscribe intercepts every result emitted on a subscription
// stream, in reverse registration order.
type AfterSubscribe func(ctx context.Context, rc *ResultControl) error

// SubscribeHook runs before the engine opens a subscription stream.
type SubscribeHook interface {
	Plugin
	OnSubscribe(ctx context.Context, ec *ExecuteControl) (AfterSubscribe, error)
}

// ResolverHook is consulted for every field resolution. It may wrap (not
// replace) the underlying resolver via the control handle; wrappers
// compose middleware-style with the last-registered plugin outermost.
type ResolverHook interface {
	Plugin
	OnResolverCalled(ctx context.Context, info *ResolveInfo, rc *ResolverControl) error
}

// ExecuteDoneHook observes the final result of a request exactly once,
// on every exit path including short-circuits and early failures.
// Callbacks run in reverse registration order; error maskers last.
type ExecuteDoneHook interface {
	Plugin
	OnExecuteDone(ctx context.Context, rc *ResultControl) error
}

// ErrorMasker marks an ExecuteDoneHook whose transform must be the final
// step applied to outgoing errors. The composer orders maskers after all
// other finalize callbacks regardless of registration position.
type ErrorMasker interface {
	ExecuteDoneHook
	MasksErrors()
}
