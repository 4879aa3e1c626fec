package monitor

import (
	"context"
	"strings"
	"sync"

	"github.com/micro-sensor/sitewhere/internal/lifecycle"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	PhaseSpanPrefix  = "lifecycle."
	NotifyEventName  = "lifecycle.notify"
	StepsTotalKey    = "lifecycle.steps.total"
	NotifyMessageKey = "lifecycle.message"
)

// Trace records each phase as a span and each step as a child span.
// Notifications become events on the running step, or on the phase span
// when no step is running.
type Trace struct {
	parent context.Context
	tracer trace.Tracer

	mu       sync.Mutex
	phaseCtx context.Context
	phase    trace.Span
	steps    map[string]trace.Span
	running  string
}

var _ lifecycle.Monitor = (*Trace)(nil)

// NewTrace creates a tracing monitor whose phase spans are children of ctx.
func NewTrace(ctx context.Context, tracer trace.Tracer) *Trace {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Trace{parent: ctx, tracer: tracer, steps: make(map[string]trace.Span)}
}

func (t *Trace) BeginPhase(name string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.phaseCtx, t.phase = t.tracer.Start(t.parent, PhaseSpanPrefix+name,
		trace.WithAttributes(attribute.Int(StepsTotalKey, total)))
	t.running = ""
}

func (t *Trace) StepProgress(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ctx := t.phaseCtx
	if ctx == nil {
		ctx = t.parent
	}
	_, span := t.tracer.Start(ctx, name)
	t.steps[name] = span
	t.running = name
}

func (t *Trace) StepDone(name string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	span, ok := t.steps[name]
	if !ok {
		return
	}
	delete(t.steps, name)
	if t.running == name {
		t.running = ""
	}
	endSpan(span, err)
}

func (t *Trace) Notify(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	span := t.phase
	if s, ok := t.steps[t.running]; ok {
		span = s
	}
	if span == nil {
		return
	}
	span.AddEvent(NotifyEventName, trace.WithAttributes(attribute.String(NotifyMessageKey, message)))
}

func (t *Trace) EndPhase(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for name, span := range t.steps {
		span.End()
		delete(t.steps, name)
	}
	if t.phase != nil {
		endSpan(t.phase, err)
	}
	t.phase, t.phaseCtx, t.running = nil, nil, ""
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
	}
	span.End()
}
