package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	hooks "github.com/hanpama/pluggraph/internal/hooks"
	language "github.com/hanpama/pluggraph/internal/language"
)

// snapshot pairs a pipeline with the schema it was composed against.
// The pair is published as one unit so readers can never observe one
// generation's pipeline with another generation's schema.
type snapshot struct {
	pipeline *Pipeline
	schema   *language.Schema
}

// Holder publishes the current pipeline/schema pair behind a single
// atomic pointer. Hot reload rebuilds the pipeline wholesale and swaps
// the pair in one store; in-flight requests keep executing against the
// snapshot they loaded at entry, so a reload never exposes partially
// rebuilt or mismatched state.
type Holder struct {
	mu   sync.Mutex // serializes Reload
	curr atomic.Pointer[snapshot]
}

// NewHolder composes plugins, lets their schema-change hooks see the
// initial schema, and publishes both.
func NewHolder(ctx context.Context, schema *language.Schema, plugins ...hooks.Plugin) (*Holder, error) {
	h := &Holder{}
	if err := h.Reload(ctx, schema, plugins...); err != nil {
		return nil, err
	}
	return h, nil
}

// Reload recomposes the pipeline from plugins and installs schema,
// running onSchemaChange hooks. On composition failure the previous
// pipeline and schema keep serving. Concurrent reloads are serialized;
// the last one to complete wins.
func (h *Holder) Reload(ctx context.Context, schema *language.Schema, plugins ...hooks.Plugin) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, err := Compose(plugins...)
	if err != nil {
		return err
	}
	schema = p.ApplySchemaChange(ctx, schema)
	h.curr.Store(&snapshot{pipeline: p, schema: schema})
	return nil
}

// Snapshot returns the pipeline and schema a request should run with.
// The two always belong to the same generation.
func (h *Holder) Snapshot() (*Pipeline, *language.Schema) {
	s := h.curr.Load()
	return s.pipeline, s.schema
}
