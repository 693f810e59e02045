// Package core defines core types with zero external dependencies.
package core

import (
	"sync"
	"time"
)

// DefaultContextTTL is how long an idle flow context survives.
const DefaultContextTTL = 120 * time.Second

// Context is the mutable state of one flow. It is shared by every packet of
// the flow, in both directions. Layers attach their own state to it by name.
type Context struct {
	Key     FlowKey
	Created time.Time

	mu     sync.Mutex
	layers map[string]any
}

// NewContext creates an empty context for key.
func NewContext(key FlowKey) *Context {
	return &Context{
		Key:     key,
		Created: time.Now(),
		layers:  make(map[string]any),
	}
}

// Lock acquires the context lock. All layer state is guarded by it.
func (c *Context) Lock() { c.mu.Lock() }

// Unlock releases the context lock.
func (c *Context) Unlock() { c.mu.Unlock() }

// Layer returns the state attached under name, creating it with create on
// first use. Must be called with the lock held.
func (c *Context) Layer(name string, create func() any) any {
	if v, ok := c.layers[name]; ok {
		return v
	}
	v := create()
	c.layers[name] = v
	return v
}

// PeekLayer returns the state attached under name without creating it.
// Must be called with the lock held.
func (c *Context) PeekLayer(name string) (any, bool) {
	v, ok := c.layers[name]
	return v, ok
}

// ContextStore maps flows to their contexts and owns context lifetime.
// Implementations must be safe for concurrent use.
type ContextStore interface {
	// GetOrCreate returns the context for key, creating it if absent. Both
	// directions of a flow resolve to the same context.
	GetOrCreate(key FlowKey) *Context
	// SetTTL pushes the expiry of c to now + ttl.
	SetTTL(c *Context, ttl time.Duration)
}

// Releaser is implemented by layer state that must account for itself when
// its context goes away.
type Releaser interface {
	Release()
}

// Close detaches every layer from the context, calling Release on those that
// implement Releaser. The store calls it when the context expires.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, v := range c.layers {
		if r, ok := v.(Releaser); ok {
			r.Release()
		}
		delete(c.layers, name)
	}
}
