package agent

// Context is the per-run shared key/value state visible to every tool
// invocation in a run. It is owned by a single run and must not be shared
// across concurrent runs, so no locking is done here.
type Context struct {
	values map[string]string
}

// NewContext creates a run context seeded with the given variables.
// The seed map is copied; the caller keeps ownership of its map.
func NewContext(seed map[string]string) *Context {
	values := make(map[string]string, len(seed))
	for k, v := range seed {
		values[k] = v
	}
	return &Context{values: values}
}

// Get returns the value for key and whether it is present.
func (c *Context) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Set stores a value under key.
func (c *Context) Set(key, value string) {
	c.values[key] = value
}

// Merge applies updates last-write-wins. Merging an empty map is a no-op.
func (c *Context) Merge(updates map[string]string) {
	for k, v := range updates {
		c.values[k] = v
	}
}

// Len returns the number of stored keys.
func (c *Context) Len() int {
	return len(c.values)
}

// Snapshot returns a copy of the current state. Mutating the returned map
// does not affect the context.
func (c *Context) Snapshot() map[string]string {
	snapshot := make(map[string]string, len(c.values))
	for k, v := range c.values {
		snapshot[k] = v
	}
	return snapshot
}
