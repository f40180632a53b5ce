package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dbsunset/dbsunset/internal/mcpclient"
)

var (
	// ErrDuplicateResult is returned when a step result is written twice.
	// Exactly one writer owns each key, so a second write is a defect.
	ErrDuplicateResult = errors.New("pipeline: step result already recorded")

	// ErrMissingResult is returned when a step requires an upstream result
	// that was never published.
	ErrMissingResult = errors.New("pipeline: missing upstream step result")
)

// Context is the per-run shared state: write-once step results keyed by step
// id, a free-form key-value area, and the MCP client registry steps reach
// external systems through. All access is serialized; stored values should
// be JSON-serializable records so snapshots and summaries can render them.
type Context struct {
	mu      sync.Mutex
	results map[string]any
	values  map[string]any
	clients *mcpclient.Registry
}

// NewContext initializes a run context. The registry may be nil when no step
// touches an external system.
func NewContext(clients *mcpclient.Registry) *Context {
	return &Context{
		results: make(map[string]any),
		values:  make(map[string]any),
		clients: clients,
	}
}

// SetResult publishes a step's output under its id. The engine calls this
// before dependents are scheduled; steps only write their own id.
func (c *Context) SetResult(id string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.results[id]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateResult, id)
	}

	c.results[id] = value

	return nil
}

// Result returns a published step output.
func (c *Context) Result(id string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, ok := c.results[id]

	return value, ok
}

// RequireResult returns a published step output or ErrMissingResult. Steps
// use it for declared dependencies, where absence is a defect.
func (c *Context) RequireResult(id string) (any, error) {
	value, ok := c.Result(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingResult, id)
	}

	return value, nil
}

// Results returns a copy of every published step output.
func (c *Context) Results() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]any, len(c.results))
	for id, value := range c.results {
		out[id] = value
	}

	return out
}

// Set stores a shared value outside the step-result namespace.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values[key] = value
}

// Value reads a shared value.
func (c *Context) Value(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, ok := c.values[key]

	return value, ok
}

// Clients returns the shared MCP client registry, possibly nil.
func (c *Context) Clients() *mcpclient.Registry {
	return c.clients
}

// CloseClients shuts every registry client down. Safe to call more than
// once and with no registry attached.
func (c *Context) CloseClients() error {
	if c.clients == nil {
		return nil
	}

	return c.clients.CloseAll()
}
