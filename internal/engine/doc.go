// Package engine provides the query-engine capability set the pipeline
// orchestrates: parse, validate, execute, subscribe. The orchestrator
// treats the engine as an opaque collaborator behind the Engine
// interface; the default implementation here parses and validates with
// gqlparser and executes against a registry of resolver functions.
//
// Execution follows the GraphQL specification: ordered field collection
// with fragments and @skip/@include, value completion for lists, leafs,
// objects and abstract types, Non-Null null propagation to the nearest
// nullable ancestor, and partial success with located errors. Sibling
// query fields resolve concurrently; mutation root fields run serially.
// Every field resolution flows through the interceptor supplied by the
// caller, which is how the pipeline's resolver hooks see each field.
package engine
