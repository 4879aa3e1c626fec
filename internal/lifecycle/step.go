package lifecycle

import (
	"context"

	"github.com/micro-sensor/sitewhere/internal/check"
)

// Step is one planned lifecycle invocation on one component.
type Step struct {
	Component Component
	Kind      Kind
	Required  bool
	// Owner is the name of the composite the step was appended to.
	Owner string
}

// Name is the display name reported to monitors.
func (s Step) Name() string {
	return s.Kind.String() + " " + s.Component.Name()
}

func (s Step) invoke(ctx context.Context, m Monitor) error {
	switch s.Kind {
	case KindInitialize:
		return s.Component.Initialize(ctx, m)
	case KindStart:
		return s.Component.Start(ctx, m)
	case KindStop:
		return s.Component.Stop(ctx, m)
	default:
		check.Assertf(false, "unknown lifecycle kind: %d", s.Kind)
		return InvalidStateErrorf("%s: unknown lifecycle kind %d", s.Component.Name(), s.Kind)
	}
}
