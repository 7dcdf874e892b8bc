// Package orchestrator drives one request through the fused pipeline:
// context building, parsing, validation, execution (or subscription),
// consulting the pipeline's hooks at every phase boundary and at every
// field resolution.
//
// The phase sequence of one request is strictly sequential and each
// phase is entered at most once, so hooks observe monotonically
// increasing progress and never duplicate side effects. Short-circuits
// skip the remaining before-hooks of the current phase and every phase
// not yet entered; after-callbacks already collected still run so that
// cleanup and logging hooks observe the early exit. The finalize pass
// (onExecuteDone, maskers last) runs exactly once on every exit path.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	engine "github.com/hanpama/pluggraph/internal/engine"
	eventbus "github.com/hanpama/pluggraph/internal/eventbus"
	events "github.com/hanpama/pluggraph/internal/events"
	hooks "github.com/hanpama/pluggraph/internal/hooks"
	language "github.com/hanpama/pluggraph/internal/language"
	pipeline "github.com/hanpama/pluggraph/internal/pipeline"
)

// Request is the sole externally supplied input of one run.
type Request struct {
	Query         string
	OperationName string
	Variables     map[string]any

	// InitialContext seeds the per-request ExecutionContext before any
	// onContextBuilding hook runs.
	InitialContext map[string]any
}

// Orchestrator executes requests against the pipeline snapshot current
// at entry. It is safe for concurrent use; each request owns its own
// execution context and control handles.
type Orchestrator struct {
	engine engine.Engine
	holder *pipeline.Holder
}

func New(eng engine.Engine, holder *pipeline.Holder) *Orchestrator {
	return &Orchestrator{engine: eng, holder: holder}
}

// Holder exposes the pipeline holder, e.g. for hot reloads.
func (o *Orchestrator) Holder() *pipeline.Holder { return o.holder }

// Run drives one query or mutation to completion. It never returns nil;
// failures of any kind surface as errors on the result after passing
// through the finalize (masking) chain.
func (o *Orchestrator) Run(ctx context.Context, req Request) *language.ExecutionResult {
	pipe, schema := o.holder.Snapshot()
	r := &runner{engine: o.engine, pipe: pipe, schema: schema, req: req}
	return r.run(ctx)
}

// Subscribe drives a subscription operation. The pre-execution phases
// behave exactly as in Run; every emitted result is intercepted by the
// after-subscribe callbacks and the finalize chain before it reaches the
// caller. A failure before the stream opens is returned as a one-result
// closed channel so the caller has a single consumption path.
func (o *Orchestrator) Subscribe(ctx context.Context, req Request) (<-chan *language.ExecutionResult, error) {
	pipe, schema := o.holder.Snapshot()
	r := &runner{engine: o.engine, pipe: pipe, schema: schema, req: req}
	return r.subscribe(ctx)
}

type phase int

const (
	phaseContextBuilding phase = iota
	phaseParsing
	phaseValidating
	phaseExecuting
	phaseCount
)

var phaseNames = [...]string{"context_building", "parsing", "validating", "executing"}

func (p phase) String() string { return phaseNames[p] }

// runner is the per-request state machine. It is used by exactly one
// goroutine until the executing phase begins.
type runner struct {
	engine engine.Engine
	pipe   *pipeline.Pipeline
	schema *language.Schema
	req    Request

	execCtx        *hooks.ExecutionContext
	doc            *language.QueryDocument
	opType         string
	entered        [phaseCount]bool
	shortCircuited bool
	finalized      bool
}

func (r *runner) run(ctx context.Context) *language.ExecutionResult {
	start := time.Now()
	eventbus.Publish(ctx, events.PipelineStart{Query: r.req.Query, OperationName: r.req.OperationName})

	res := r.drive(ctx)
	res = r.finalize(ctx, res)

	errs := make([]error, len(res.Errors))
	for i := range res.Errors {
		errs[i] = res.Errors[i]
	}
	eventbus.Publish(ctx, events.PipelineFinish{
		Query:          r.req.Query,
		OperationName:  r.req.OperationName,
		OperationType:  r.opType,
		Errors:         errs,
		ShortCircuited: r.shortCircuited,
		Duration:       time.Since(start),
	})
	return res
}

// drive walks the phases in order. A non-nil return is the pre-finalize
// result, whether completed, errored, or short-circuited.
func (r *runner) drive(ctx context.Context) *language.ExecutionResult {
	if res := r.contextBuilding(ctx); res != nil {
		return res
	}
	if res := r.parsing(ctx); res != nil {
		return res
	}
	if res := r.validating(ctx); res != nil {
		return res
	}
	return r.executing(ctx)
}

// enter guards the at-most-once phase entry invariant.
func (r *runner) enter(p phase) error {
	if r.entered[p] {
		return &InternalPipelineError{Phase: p.String(), Err: fmt.Errorf("phase entered twice")}
	}
	r.entered[p] = true
	return nil
}

func (r *runner) beginPhase(ctx context.Context, p phase) func() {
	eventbus.Publish(ctx, events.PhaseStart{Phase: p.String()})
	start := time.Now()
	return func() {
		eventbus.Publish(ctx, events.PhaseFinish{
			Phase:          p.String(),
			ShortCircuited: r.shortCircuited,
			Duration:       time.Since(start),
		})
	}
}

func (r *runner) contextBuilding(ctx context.Context) *language.ExecutionResult {
	if err := r.enter(phaseContextBuilding); err != nil {
		return errorResult(err)
	}
	defer r.beginPhase(ctx, phaseContextBuilding)()

	r.execCtx = hooks.NewExecutionContext(r.req.InitialContext)
	cc := hooks.NewContextControl(r.execCtx)
	defer func() {
		cc.Retire()
		r.execCtx.Freeze()
	}()

	for _, h := range r.pipe.ContextBuilding() {
		if err := ctx.Err(); err != nil {
			return errorResult(err)
		}
		cc.SetPlugin(h.PluginName())
		if err := safeHook(func() error { return h.OnContextBuilding(ctx, cc) }); err != nil {
			return r.hookFailure(phaseContextBuilding, h, err)
		}
		if res, ok := cc.ShortCircuited(); ok {
			r.shortCircuited = true
			return res
		}
	}
	return nil
}

func (r *runner) parsing(ctx context.Context) *language.ExecutionResult {
	if err := r.enter(phaseParsing); err != nil {
		return errorResult(err)
	}
	defer r.beginPhase(ctx, phaseParsing)()

	pc := hooks.NewParseControl(r.req.Query)
	var afters []hooks.AfterParse
	for _, h := range r.pipe.Parse() {
		if err := ctx.Err(); err != nil {
			return errorResult(err)
		}
		var after hooks.AfterParse
		err := safeHook(func() error {
			var hookErr error
			after, hookErr = h.OnParse(ctx, pc)
			return hookErr
		})
		if err != nil {
			return r.hookFailure(phaseParsing, h, err)
		}
		if after != nil {
			afters = append(afters, after)
		}
		if res, ok := pc.ShortCircuited(); ok {
			r.shortCircuited = true
			// Pending after-callbacks of this already-entered phase still
			// observe the early exit; their failures surface like on the
			// regular path.
			if err := r.runParseAfters(ctx, afters, hooks.NewParseResultControl(nil, nil)); err != nil {
				return errorResult(err)
			}
			return res
		}
	}

	doc, provided := pc.ProvidedDocument()
	var parseErr *language.Error
	if !provided {
		doc, parseErr = r.engine.Parse(ctx, pc.Query())
	}
	prc := hooks.NewParseResultControl(doc, parseErr)
	if err := r.runParseAfters(ctx, afters, prc); err != nil {
		return errorResult(err)
	}
	if res, ok := prc.ShortCircuited(); ok {
		r.shortCircuited = true
		return res
	}
	if prc.Err() != nil {
		return &language.ExecutionResult{Errors: language.ErrorList{prc.Err()}}
	}
	if prc.Document() == nil {
		return errorResult(&InternalPipelineError{Phase: phaseParsing.String(), Err: fmt.Errorf("no document after parsing")})
	}
	r.doc = prc.Document()

	if op := operationOf(r.doc, r.req.OperationName); op != nil {
		r.opType = string(op.Operation)
	}
	return nil
}

// runParseAfters runs callbacks in reverse registration order. onParse
// afters transform the document, so they are not best-effort: the first
// failure aborts the rest and surfaces.
func (r *runner) runParseAfters(ctx context.Context, afters []hooks.AfterParse, prc *hooks.ParseResultControl) error {
	for i := len(afters) - 1; i >= 0; i-- {
		after := afters[i]
		if err := safeHook(func() error { return after(ctx, prc) }); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) validating(ctx context.Context) *language.ExecutionResult {
	if err := r.enter(phaseValidating); err != nil {
		return errorResult(err)
	}
	defer r.beginPhase(ctx, phaseValidating)()

	vc := hooks.NewValidateControl(r.schema, r.doc)
	var afters []hooks.AfterValidate
	for _, h := range r.pipe.Validate() {
		if err := ctx.Err(); err != nil {
			return errorResult(err)
		}
		var after hooks.AfterValidate
		err := safeHook(func() error {
			var hookErr error
			after, hookErr = h.OnValidate(ctx, vc)
			return hookErr
		})
		if err != nil {
			return r.hookFailure(phaseValidating, h, err)
		}
		if after != nil {
			afters = append(afters, after)
		}
		if res, ok := vc.ShortCircuited(); ok {
			r.shortCircuited = true
			for i := len(afters) - 1; i >= 0; i-- {
				after := afters[i]
				if err := safeHook(func() error { return after(ctx, hooks.NewValidateResultControl(nil)) }); err != nil {
					return errorResult(err)
				}
			}
			return res
		}
	}

	errs := r.engine.Validate(ctx, r.schema, r.doc, vc.Rules())
	vrc := hooks.NewValidateResultControl(errs)
	for i := len(afters) - 1; i >= 0; i-- {
		after := afters[i]
		if err := safeHook(func() error { return after(ctx, vrc) }); err != nil {
			return errorResult(err)
		}
	}
	if collected := vrc.Errors(); len(collected) > 0 {
		return &language.ExecutionResult{Errors: collected}
	}
	return nil
}

func (r *runner) executing(ctx context.Context) *language.ExecutionResult {
	if err := r.enter(phaseExecuting); err != nil {
		return errorResult(err)
	}
	defer r.beginPhase(ctx, phaseExecuting)()

	op := operationOf(r.doc, r.req.OperationName)
	if op == nil {
		return errorResult(fmt.Errorf("operation %q not found", r.req.OperationName))
	}
	if op.Operation == language.Subscription {
		return errorResult(fmt.Errorf("subscription operations must be run via Subscribe"))
	}

	ec := hooks.NewExecuteControl(r.execCtx, r.schema, r.doc, r.req.OperationName, r.req.Variables)
	var afters []hooks.AfterExecute
	for _, h := range r.pipe.Execute() {
		if err := ctx.Err(); err != nil {
			return errorResult(err)
		}
		var after hooks.AfterExecute
		err := safeHook(func() error {
			var hookErr error
			after, hookErr = h.OnExecute(ctx, ec)
			return hookErr
		})
		if err != nil {
			return r.hookFailure(phaseExecuting, h, err)
		}
		if after != nil {
			afters = append(afters, after)
		}
		if res, ok := ec.ShortCircuited(); ok {
			r.shortCircuited = true
			final, aerr := r.runExecuteAfters(ctx, afters, res)
			if aerr != nil {
				return errorResult(aerr)
			}
			return final
		}
	}

	res := r.engine.Execute(ctx, engine.Params{
		Schema:        ec.Schema(),
		Document:      ec.Document(),
		OperationName: r.req.OperationName,
		Variables:     r.req.Variables,
		Context:       r.execCtx,
		Interceptor:   r.interceptor(),
	})
	final, aerr := r.runExecuteAfters(ctx, afters, res)
	if aerr != nil {
		return errorResult(aerr)
	}
	return final
}

// runExecuteAfters applies the result interception callbacks in reverse
// registration order: the last-registered plugin transforms first.
func (r *runner) runExecuteAfters(ctx context.Context, afters []hooks.AfterExecute, res *language.ExecutionResult) (*language.ExecutionResult, error) {
	rc := hooks.NewResultControl(res)
	for i := len(afters) - 1; i >= 0; i-- {
		after := afters[i]
		if err := safeHook(func() error { return after(ctx, rc) }); err != nil {
			return nil, err
		}
	}
	return rc.Result(), nil
}

// interceptor routes every field resolution through the pipeline's
// resolver hooks and publishes a ResolverCall event.
func (r *runner) interceptor() hooks.ResolverInterceptor {
	return func(ctx context.Context, info *hooks.ResolveInfo, next hooks.FieldResolver) (any, error) {
		start := time.Now()
		value, err := r.pipe.Intercept(ctx, info, next)
		eventbus.Publish(ctx, events.ResolverCall{
			ObjectType: info.ObjectType,
			Field:      info.FieldName,
			Err:        err,
			Duration:   time.Since(start),
		})
		return value, err
	}
}

// finalize runs the onExecuteDone chain exactly once per request, on
// every exit path. The pass is best-effort: a failing hook is recorded
// on the result and the remaining hooks still run.
func (r *runner) finalize(ctx context.Context, res *language.ExecutionResult) *language.ExecutionResult {
	if r.finalized {
		return res
	}
	r.finalized = true
	if res == nil {
		res = &language.ExecutionResult{}
	}
	rc := hooks.NewResultControl(res)
	for _, h := range r.pipe.Finalize() {
		if err := safeHook(func() error { return h.OnExecuteDone(ctx, rc) }); err != nil {
			rc.Result().Errors = append(rc.Result().Errors, language.WrapError(nil, err))
		}
	}
	return rc.Result()
}

func (r *runner) subscribe(ctx context.Context) (<-chan *language.ExecutionResult, error) {
	eventbus.Publish(ctx, events.PipelineStart{Query: r.req.Query, OperationName: r.req.OperationName})

	if res := r.contextBuilding(ctx); res != nil {
		return r.singleResult(ctx, res), nil
	}
	if res := r.parsing(ctx); res != nil {
		return r.singleResult(ctx, res), nil
	}
	if res := r.validating(ctx); res != nil {
		return r.singleResult(ctx, res), nil
	}

	op := operationOf(r.doc, r.req.OperationName)
	if op == nil {
		return nil, fmt.Errorf("operation %q not found", r.req.OperationName)
	}
	if op.Operation != language.Subscription {
		return nil, fmt.Errorf("operation %q is not a subscription", op.Name)
	}

	if err := r.enter(phaseExecuting); err != nil {
		return nil, err
	}
	ec := hooks.NewExecuteControl(r.execCtx, r.schema, r.doc, r.req.OperationName, r.req.Variables)
	var afters []hooks.AfterSubscribe
	for _, h := range r.pipe.Subscribe() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var after hooks.AfterSubscribe
		err := safeHook(func() error {
			var hookErr error
			after, hookErr = h.OnSubscribe(ctx, ec)
			return hookErr
		})
		if err != nil {
			return nil, err
		}
		if after != nil {
			afters = append(afters, after)
		}
		if res, ok := ec.ShortCircuited(); ok {
			r.shortCircuited = true
			return r.singleResult(ctx, res), nil
		}
	}

	stream, err := r.engine.Subscribe(ctx, engine.Params{
		Schema:        ec.Schema(),
		Document:      ec.Document(),
		OperationName: r.req.OperationName,
		Variables:     r.req.Variables,
		Context:       r.execCtx,
		Interceptor:   r.interceptor(),
	})
	if err != nil {
		return nil, err
	}

	out := make(chan *language.ExecutionResult)
	go func() {
		defer close(out)
		for res := range stream {
			rc := hooks.NewResultControl(res)
			for i := len(afters) - 1; i >= 0; i-- {
				after := afters[i]
				if err := safeHook(func() error { return after(ctx, rc) }); err != nil {
					rc.SetResult(errorResult(err))
					break
				}
			}
			final := r.finalizeEvent(ctx, rc.Result())
			select {
			case out <- final:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// finalizeEvent applies the finalize chain to one emitted subscription
// result. Each emitted result passes through masking exactly once.
func (r *runner) finalizeEvent(ctx context.Context, res *language.ExecutionResult) *language.ExecutionResult {
	rc := hooks.NewResultControl(res)
	for _, h := range r.pipe.Finalize() {
		if err := safeHook(func() error { return h.OnExecuteDone(ctx, rc) }); err != nil {
			rc.Result().Errors = append(rc.Result().Errors, language.WrapError(nil, err))
		}
	}
	return rc.Result()
}

// singleResult finalizes res and returns it on a closed one-element
// channel, giving subscription callers a single consumption path for
// pre-stream failures.
func (r *runner) singleResult(ctx context.Context, res *language.ExecutionResult) <-chan *language.ExecutionResult {
	res = r.finalize(ctx, res)
	out := make(chan *language.ExecutionResult, 1)
	out <- res
	close(out)
	return out
}

// hookFailure converts a before-hook failure into an errored result,
// attributing it to the offending plugin. Contract violations become
// internal pipeline errors.
func (r *runner) hookFailure(p phase, plugin hooks.Plugin, err error) *language.ExecutionResult {
	var cv *hooks.ContractViolation
	if errors.As(err, &cv) {
		err = &InternalPipelineError{Phase: p.String(), Err: cv}
	}
	gerr := language.WrapError(nil, err)
	if gerr.Extensions == nil {
		gerr.Extensions = map[string]any{}
	}
	gerr.Extensions["plugin"] = plugin.PluginName()
	return &language.ExecutionResult{Errors: language.ErrorList{gerr}}
}

func errorResult(err error) *language.ExecutionResult {
	return &language.ExecutionResult{Errors: language.ErrorList{language.WrapError(nil, err)}}
}

// safeHook runs fn, converting a panic into an error so a misbehaving
// plugin fails its request instead of the process.
func safeHook(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("hook panicked: %v", rec)
		}
	}()
	return fn()
}

func operationOf(doc *language.QueryDocument, name string) *language.OperationDefinition {
	if doc == nil {
		return nil
	}
	if name == "" && len(doc.Operations) == 1 {
		return doc.Operations[0]
	}
	return doc.Operations.ForName(name)
}
