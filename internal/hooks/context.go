package hooks

import (
	"sync"
)

// ExecutionContext is the per-request mutable bag threaded through every
// phase. It is seeded with caller-supplied values, extended by
// ContextBuildingHooks in registration order (last writer wins), and
// frozen once context building completes. After the freeze the context
// is read-only at the key level; plugins may still mutate nested values
// they own. Reads are safe under the concurrent field resolution of the
// executing phase because all key writes happen strictly before it.
type ExecutionContext struct {
	mu     sync.RWMutex
	values map[string]any
	frozen bool
}

// NewExecutionContext creates a context seeded with initial values.
// The seed map is copied; the caller keeps ownership of its map.
func NewExecutionContext(seed map[string]any) *ExecutionContext {
	values := make(map[string]any, len(seed))
	for k, v := range seed {
		values[k] = v
	}
	return &ExecutionContext{values: values}
}

// Get returns the value for key. The second return distinguishes "not
// yet computed" from "computed as nil": it is false only when the key
// was never set.
func (c *ExecutionContext) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Len returns the number of keys currently set.
func (c *ExecutionContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// Keys returns a snapshot of the keys currently set, in no particular
// order.
func (c *ExecutionContext) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	return keys
}

// Extend merges partial into the context, overriding existing keys.
// It fails with *ContractViolation once the context is frozen.
func (c *ExecutionContext) Extend(partial map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return &ContractViolation{
			Kind:   KindContextBuilding,
			Action: "extendContext",
			Reason: "execution context is frozen; writes are only legal during context building",
		}
	}
	for k, v := range partial {
		c.values[k] = v
	}
	return nil
}

// Freeze marks the end of the context building phase. Subsequent Extend
// calls fail.
func (c *ExecutionContext) Freeze() {
	c.mu.Lock()
	c.frozen = true
	c.mu.Unlock()
}

// Frozen reports whether context building has completed.
func (c *ExecutionContext) Frozen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frozen
}
