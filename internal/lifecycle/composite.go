package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Policy controls how a composite reacts to step failures.
type Policy struct {
	// ContinueOnFailure runs every step regardless of earlier failures and
	// reports them together. When false, a failing required step aborts the
	// walk and a failing optional step is recorded and skipped.
	ContinueOnFailure bool
	// StepTimeout bounds each step. Zero disables the bound.
	StepTimeout time.Duration
}

// StartupPolicy is the fail-fast policy used for initialize and start phases.
func StartupPolicy(stepTimeout time.Duration) Policy {
	return Policy{StepTimeout: stepTimeout}
}

// ShutdownPolicy is the best-effort policy used for stop phases.
func ShutdownPolicy(stepTimeout time.Duration) Policy {
	return Policy{ContinueOnFailure: true, StepTimeout: stepTimeout}
}

// Composite is an ordered, named group of steps executed as one phase.
//
// Steps run in append order. A composite is built once and executed once per
// real transition; executing it again replays every step.
type Composite struct {
	name   string
	policy Policy
	steps  []Step

	failures []*StepError
}

// NewComposite creates an empty composite.
func NewComposite(name string, policy Policy) *Composite {
	return &Composite{name: name, policy: policy}
}

func (c *Composite) Name() string {
	return c.name
}

func (c *Composite) Policy() Policy {
	return c.policy
}

// Add appends a step.
func (c *Composite) Add(comp Component, kind Kind, required bool) {
	c.steps = append(c.steps, Step{Component: comp, Kind: kind, Required: required, Owner: c.name})
}

func (c *Composite) AddInitializeStep(comp Component, required bool) {
	c.Add(comp, KindInitialize, required)
}

func (c *Composite) AddStartStep(comp Component, required bool) {
	c.Add(comp, KindStart, required)
}

// AddStopStep appends a stop step. Stop steps are never required; the
// shutdown policy runs them all anyway.
func (c *Composite) AddStopStep(comp Component) {
	c.Add(comp, KindStop, false)
}

// Steps returns the declared steps in order.
func (c *Composite) Steps() []Step {
	out := make([]Step, len(c.steps))
	copy(out, c.steps)
	return out
}

// Failures returns the step failures recorded by the last Execute, including
// optional failures that did not abort the phase.
func (c *Composite) Failures() []*StepError {
	out := make([]*StepError, len(c.failures))
	copy(out, c.failures)
	return out
}

// Execute walks the steps in order, applying the composite's policy.
//
// Under the fail-fast policy the first failing required step is returned,
// wrapped with the composite name, and no later step runs. Under the
// continue policy every step runs and an *AggregateError is returned when
// any failed.
func (c *Composite) Execute(ctx context.Context, m Monitor) error {
	m = monitorOrNop(m)
	log := slog.With("phase", c.name)
	c.failures = nil

	m.BeginPhase(c.name, len(c.steps))
	log.Debug("phase started", "steps", len(c.steps))

	for i, step := range c.steps {
		if !c.policy.ContinueOnFailure {
			if err := ctx.Err(); err != nil {
				err = fmt.Errorf("%s: cancelled before %s: %w", c.name, step.Name(), err)
				m.EndPhase(err)
				return err
			}
		}

		m.StepProgress(step.Name())
		err := c.run(ctx, step, m)
		m.StepDone(step.Name(), err)
		if err == nil {
			log.Debug("step completed", "index", i, "step", step.Name())
			continue
		}

		stepErr := &StepError{
			Owner:     c.name,
			Component: step.Component.Name(),
			Kind:      step.Kind,
			Required:  step.Required,
			Err:       err,
		}
		c.failures = append(c.failures, stepErr)

		switch {
		case c.policy.ContinueOnFailure:
			log.Warn("step failed, continuing", "step", step.Name(), "err", err)
		case step.Required:
			failed := fmt.Errorf("%s: %w", c.name, stepErr)
			m.EndPhase(failed)
			return failed
		default:
			log.Warn("optional step failed", "step", step.Name(), "err", err)
		}
	}

	if c.policy.ContinueOnFailure && len(c.failures) > 0 {
		agg := &AggregateError{Phase: c.name, Failures: c.Failures()}
		m.EndPhase(agg)
		return agg
	}

	m.EndPhase(nil)
	log.Debug("phase completed")
	return nil
}

// run invokes one step, bounded by the policy's step timeout. The step
// sees a context cancelled at the bound and run waits for it to return, so
// the component has left its transitional state before the phase moves on.
// A step still running at the bound fails as a connectivity error even when
// it later returns nil.
func (c *Composite) run(ctx context.Context, step Step, m Monitor) error {
	timeout := c.policy.StepTimeout
	if timeout <= 0 {
		return step.invoke(ctx, m)
	}

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := step.invoke(stepCtx, m)
	if ctx.Err() != nil || !errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return err
	}
	if err == nil {
		return ConnectivityErrorf("%s did not complete within %s", step.Name(), timeout)
	}
	return Wrap(ClassConnectivity, fmt.Errorf("%s exceeded %s: %w", step.Name(), timeout, err))
}
