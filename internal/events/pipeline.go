// Package events declares the event payloads published on the internal
// bus. Payloads are plain structs; subscribers (tracing, logging) decide
// what to do with them.
package events

import (
	"net/http"
	"time"
)

// HTTPStart is emitted when an HTTP request is received.
// Context carries the request context.
type HTTPStart struct {
	Request *http.Request
}

// HTTPFinish is emitted after the HTTP handler completes.
type HTTPFinish struct {
	Request  *http.Request
	Status   int
	Duration time.Duration
}

// PipelineStart is emitted when the orchestrator accepts a request.
// The operation type is not known yet at this point; it is carried by
// PipelineFinish once parsing has determined it.
type PipelineStart struct {
	Query         string
	OperationName string
}

// PipelineFinish is emitted once per request, after the finalize pass.
type PipelineFinish struct {
	Query          string
	OperationName  string
	OperationType  string
	Errors         []error
	ShortCircuited bool
	Duration       time.Duration
}

// PhaseStart is emitted when a lifecycle phase is entered.
type PhaseStart struct {
	Phase string
}

// PhaseFinish is emitted when a lifecycle phase completes, whether it
// ran through or was short-circuited.
type PhaseFinish struct {
	Phase          string
	ShortCircuited bool
	Duration       time.Duration
}

// ResolverCall is emitted after each intercepted field resolution.
type ResolverCall struct {
	ObjectType string
	Field      string
	Err        error
	Duration   time.Duration
}
