// Package instance hosts the instance management microservice: it owns every
// hosted component, declares the order they are initialized, started and
// stopped in, and exposes the started capability channels.
package instance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/micro-sensor/sitewhere/internal/capability"
	"github.com/micro-sensor/sitewhere/internal/lifecycle"
)

// Binding pairs a capability channel with the client it serves.
type Binding struct {
	Name    capability.Name
	Channel lifecycle.Component
	Client  any
}

// Components are the hosted components in dependency order. Metrics is
// optional; every other field is required.
type Components struct {
	Metrics      lifecycle.Component
	Scripts      lifecycle.Component
	Config       lifecycle.Component
	Store        lifecycle.Component
	Bootstrap    lifecycle.Component
	TenantServer lifecycle.Component
	UserServer   lifecycle.Component
	// Channels are started in slice order and stopped in reverse.
	Channels []Binding
}

// Timeouts bound the phases.
type Timeouts struct {
	// Step bounds each initialize and start step.
	Step time.Duration
	// Stop bounds each stop step.
	Stop time.Duration
}

// Microservice is the orchestrator. The three composites are built once by
// New; Initialize, Start and Stop each execute one of them.
type Microservice struct {
	name       string
	components Components
	registry   *capability.Registry

	initialize *lifecycle.Composite
	start      *lifecycle.Composite
	stop       *lifecycle.Composite

	mu    sync.Mutex
	phase Phase
}

// New validates the components, registers the capability channels and
// declares the phase orderings.
func New(name string, c Components, t Timeouts) (*Microservice, error) {
	required := []struct {
		what string
		comp lifecycle.Component
	}{
		{"script synchronizer", c.Scripts},
		{"configuration engine", c.Config},
		{"management store", c.Store},
		{"instance bootstrapper", c.Bootstrap},
		{"tenant management server", c.TenantServer},
		{"user management server", c.UserServer},
	}
	for _, r := range required {
		if r.comp == nil {
			return nil, lifecycle.ConfigurationErrorf("%s is required", r.what)
		}
	}

	registry := capability.NewRegistry()
	for _, b := range c.Channels {
		if err := registry.Register(b.Name, b.Channel, b.Client); err != nil {
			return nil, lifecycle.Wrap(lifecycle.ClassConfiguration, err)
		}
	}
	for _, name := range capability.Names {
		if _, ok := registry.Channel(name); !ok {
			return nil, lifecycle.ConfigurationErrorf("%s channel is required", name)
		}
	}

	s := &Microservice{name: name, components: c, registry: registry}
	s.initialize = lifecycle.NewComposite("Initialize "+name, lifecycle.StartupPolicy(t.Step))
	s.start = lifecycle.NewComposite("Start "+name, lifecycle.StartupPolicy(t.Step))
	s.stop = lifecycle.NewComposite("Stop "+name, lifecycle.ShutdownPolicy(t.Stop))

	for _, step := range s.order() {
		s.initialize.AddInitializeStep(step.comp, step.required)
		s.start.AddStartStep(step.comp, step.required)
	}
	ordered := s.order()
	for i := len(ordered) - 1; i >= 0; i-- {
		s.stop.AddStopStep(ordered[i].comp)
	}
	return s, nil
}

type member struct {
	comp     lifecycle.Component
	required bool
}

// order is the single declaration of bring-up order. Local support services
// come first, then persistence, then the inbound servers, then the outbound
// channels.
func (s *Microservice) order() []member {
	c := s.components
	var out []member
	if c.Metrics != nil {
		out = append(out, member{c.Metrics, false})
	}
	out = append(out,
		member{c.Scripts, true},
		member{c.Config, true},
		member{c.Store, true},
		member{c.Bootstrap, true},
		member{c.TenantServer, true},
		member{c.UserServer, true},
	)
	for _, b := range c.Channels {
		out = append(out, member{b.Channel, true})
	}
	return out
}

func (s *Microservice) Name() string {
	return s.name
}

func (s *Microservice) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Registry returns the capability registry shared with request handlers.
func (s *Microservice) Registry() *capability.Registry {
	return s.registry
}

// Plan returns the three composites for inspection.
func (s *Microservice) Plan() (initialize, start, stop *lifecycle.Composite) {
	return s.initialize, s.start, s.stop
}

// Initialize runs the initialize phase. It is accepted from unstarted or
// stopped; a required failure leaves the microservice failed.
func (s *Microservice) Initialize(ctx context.Context, m lifecycle.Monitor) error {
	return s.run(ctx, m, s.initialize, PhaseInitializing, PhaseInitialized, PhaseUnstarted, PhaseStopped)
}

// Start runs the start phase. It requires a completed initialize phase.
func (s *Microservice) Start(ctx context.Context, m lifecycle.Monitor) error {
	return s.run(ctx, m, s.start, PhaseStarting, PhaseStarted, PhaseInitialized)
}

// Stop runs the stop phase over every component. Stop of an unstarted or
// stopped microservice is a no-op. Failures are aggregated; the
// microservice ends stopped either way.
func (s *Microservice) Stop(ctx context.Context, m lifecycle.Monitor) error {
	s.mu.Lock()
	switch s.phase {
	case PhaseUnstarted, PhaseStopped:
		s.mu.Unlock()
		return nil
	case PhaseInitialized, PhaseStarted, PhaseFailed:
		s.phase = PhaseStopping
		s.mu.Unlock()
	default:
		current := s.phase
		s.mu.Unlock()
		return lifecycle.InvalidStateErrorf("%s: cannot stop while %s", s.name, current)
	}

	err := s.stop.Execute(ctx, m)

	s.mu.Lock()
	s.phase = PhaseStopped
	s.mu.Unlock()

	if err != nil {
		slog.Warn("stop completed with failures", "component", "instance", "instance", s.name, "err", err)
	}
	return err
}

func (s *Microservice) run(ctx context.Context, m lifecycle.Monitor, phase *lifecycle.Composite, during, done Phase, allowed ...Phase) error {
	s.mu.Lock()
	ok := false
	for _, a := range allowed {
		if s.phase == a {
			ok = true
			break
		}
	}
	if !ok {
		current := s.phase
		s.mu.Unlock()
		return lifecycle.InvalidStateErrorf("%s: cannot %s while %s", s.name, phase.Name(), current)
	}
	s.phase = during
	s.mu.Unlock()

	err := phase.Execute(ctx, m)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.phase = PhaseFailed
		return err
	}
	s.phase = done
	return nil
}
