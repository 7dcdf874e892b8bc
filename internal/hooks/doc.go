// Package hooks defines the extension-point contract between the request
// pipeline and independently authored plugins.
//
// # Contract
//
// A plugin is any value implementing Plugin plus zero or more of the
// capability interfaces declared here, one per lifecycle hook kind:
//
//   - SchemaChangeHook: observe (and optionally replace) the schema when
//     it is installed or hot-reloaded.
//   - ContextBuildingHook: enrich the per-request ExecutionContext.
//   - ParseHook: run before parsing; may pre-supply a document, and may
//     return an after-callback that inspects or replaces the parsed one.
//   - ValidateHook: inject validation rules; the after-callback observes
//     the collected validation errors.
//   - ExecuteHook / SubscribeHook: run before execution with the ability
//     to swap the schema for this request; the after-callback intercepts
//     the produced result.
//   - ResolverHook: wrap individual field resolvers, middleware style.
//   - ExecuteDoneHook: observe or transform the final result exactly once
//     per request, on every exit path.
//
// Hooks never see each other. Coordination happens only through the
// ExecutionContext and through the ordering guarantees of the pipeline:
// before-sides run in registration order, after-sides and wrappers in
// reverse registration order.
//
// # Control handles
//
// Every hook receives a control handle exposing exactly the actions that
// are legal at its phase. Most illegal actions are therefore
// unrepresentable at compile time. The remaining phase-time violations,
// such as extending the context from a handle retained past context
// building, are reported as *ContractViolation, never silently dropped.
package hooks
