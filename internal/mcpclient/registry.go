package mcpclient

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry hands out one client per manifest server and guarantees that all
// of them close exactly once at pipeline teardown.
type Registry struct {
	manifest *Manifest

	mu      sync.Mutex
	clients map[string]*Client
	closed  bool
}

// NewRegistry creates a registry over a loaded manifest.
func NewRegistry(manifest *Manifest) *Registry {
	return &Registry{
		manifest: manifest,
		clients:  map[string]*Client{},
	}
}

// Get returns the client for a named server, creating it on first use.
// The client itself connects lazily on its first Invoke.
func (r *Registry) Get(name string) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClientClosed
	}

	if client, ok := r.clients[name]; ok {
		return client, nil
	}

	spec, ok := r.manifest.MCPServers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrServerNotConfigured, name)
	}

	client := NewClient(name, spec)
	r.clients[name] = client

	return client, nil
}

// Register installs a pre-built client under a name, replacing any manifest
// spec for it. Tests use this to wire in-memory transports.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[name] = client
}

// ActiveNames returns the names of clients created so far, sorted.
func (r *Registry) ActiveNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// CloseAll closes every created client. Repeated calls are no-ops; the first
// call returns the joined close errors, if any.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true

	var errs []error

	for name, client := range r.clients {
		err := client.Close()
		if err != nil {
			errs = append(errs, fmt.Errorf("server %s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}
