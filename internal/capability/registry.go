package capability

import (
	"fmt"
	"sort"
	"sync"

	"github.com/micro-sensor/sitewhere/internal/lifecycle"

	"github.com/containerd/errdefs"
)

// Registry maps capability names to the channel that carries them and the
// client that exposes them. It is built once by the orchestrator and passed
// by reference to whatever needs remote calls.
type Registry struct {
	mu      sync.RWMutex
	entries map[Name]entry
}

type entry struct {
	channel lifecycle.Component
	client  any
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[Name]entry)}
}

// Register binds name to a channel and its client. Each name can be bound
// once.
func (r *Registry) Register(name Name, channel lifecycle.Component, client any) error {
	if channel == nil || client == nil {
		return fmt.Errorf("register capability %s: channel and client are required: %w", name, errdefs.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("register capability %s: %w", name, errdefs.ErrAlreadyExists)
	}
	r.entries[name] = entry{channel: channel, client: client}
	return nil
}

// Channel returns the component carrying name.
func (r *Registry) Channel(name Name) (lifecycle.Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.channel, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Name, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Lookup returns the client registered under name as T. It fails with a
// not-found error for unknown names and with an unavailable error while the
// carrying channel is not started.
func Lookup[T any](r *Registry, name Name) (T, error) {
	var zero T
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("capability %s: %w", name, errdefs.ErrNotFound)
	}
	if state := e.channel.State(); state != lifecycle.StateStarted {
		return zero, fmt.Errorf("capability %s is %s: %w", name, state, errdefs.ErrUnavailable)
	}
	client, ok := e.client.(T)
	if !ok {
		return zero, fmt.Errorf("capability %s has unexpected client type %T: %w", name, e.client, errdefs.ErrInvalidArgument)
	}
	return client, nil
}
