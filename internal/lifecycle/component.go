// Package lifecycle defines the contract every hosted component satisfies and
// the composite executor that drives components through the initialize, start
// and stop phases.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
)

// Component is a subsystem participant that can be initialized, started and
// stopped by an orchestrator.
//
// Initialize moves created or stopped components to initialized; calling it
// again without an intervening Stop is rejected with an invalid state error.
// Start requires the initialized state. Stop accepts initialized, started and
// failed components and is a no-op for components that are already stopped
// or were never initialized.
type Component interface {
	Name() string
	State() State
	Initialize(ctx context.Context, m Monitor) error
	Start(ctx context.Context, m Monitor) error
	Stop(ctx context.Context, m Monitor) error
}

// Hook is a component-specific lifecycle body run by Base.
type Hook func(ctx context.Context, m Monitor) error

// Hooks holds the bodies Base runs inside each transition. Nil hooks succeed.
type Hooks struct {
	Initialize Hook
	Start      Hook
	Stop       Hook
}

// Base implements the Component state machine. Concrete components embed a
// *Base and supply their bodies as Hooks.
type Base struct {
	name  string
	hooks Hooks

	mu    sync.Mutex
	state State
}

// NewBase creates a Base in the created state.
func NewBase(name string, hooks Hooks) *Base {
	return &Base{name: name, hooks: hooks}
}

func (b *Base) Name() string {
	return b.name
}

func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Base) Initialize(ctx context.Context, m Monitor) error {
	if err := b.enter(KindInitialize, StateInitializing, StateCreated, StateStopped); err != nil {
		return err
	}
	return b.finish(ctx, m, KindInitialize, b.hooks.Initialize, StateInitialized)
}

func (b *Base) Start(ctx context.Context, m Monitor) error {
	if err := b.enter(KindStart, StateStarting, StateInitialized); err != nil {
		return err
	}
	return b.finish(ctx, m, KindStart, b.hooks.Start, StateStarted)
}

func (b *Base) Stop(ctx context.Context, m Monitor) error {
	b.mu.Lock()
	switch b.state {
	case StateCreated, StateStopped:
		b.mu.Unlock()
		return nil
	case StateInitialized, StateStarted, StateFailed:
		b.state = StateStopping
		b.mu.Unlock()
	default:
		current := b.state
		b.mu.Unlock()
		return InvalidStateErrorf("%s: cannot stop while %s", b.name, current)
	}
	return b.finish(ctx, m, KindStop, b.hooks.Stop, StateStopped)
}

func (b *Base) enter(kind Kind, transitional State, allowed ...State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range allowed {
		if b.state == s {
			b.state = transitional
			return nil
		}
	}
	return InvalidStateErrorf("%s: cannot %s while %s", b.name, kind, b.state)
}

func (b *Base) finish(ctx context.Context, m Monitor, kind Kind, hook Hook, final State) error {
	m = monitorOrNop(m)
	var err error
	if hook != nil {
		err = hook(ctx, m)
	}

	b.mu.Lock()
	if err != nil {
		b.state = StateFailed
	} else {
		b.state = final
	}
	b.mu.Unlock()

	if err != nil {
		slog.Debug("lifecycle transition failed", "component", b.name, "op", kind.String(), "err", err)
		return err
	}
	m.Notify(b.name + " " + final.String())
	return nil
}
