package monitor

import (
	"sync"
	"time"

	"github.com/micro-sensor/sitewhere/internal/lifecycle"
	"github.com/micro-sensor/sitewhere/internal/metrics"
)

// Metrics feeds phase and step durations into Prometheus instruments.
type Metrics struct {
	m *metrics.Lifecycle

	mu      sync.Mutex
	phase   string
	started time.Time
	steps   map[string]time.Time
}

var _ lifecycle.Monitor = (*Metrics)(nil)

func NewMetrics(m *metrics.Lifecycle) *Metrics {
	return &Metrics{m: m, steps: make(map[string]time.Time)}
}

func (x *Metrics) BeginPhase(name string, _ int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.phase = name
	x.started = time.Now()
	clear(x.steps)
}

func (x *Metrics) StepProgress(name string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.steps[name] = time.Now()
}

func (x *Metrics) StepDone(name string, err error) {
	x.mu.Lock()
	started, ok := x.steps[name]
	delete(x.steps, name)
	phase := x.phase
	x.mu.Unlock()

	if ok {
		x.m.ObserveStep(phase, name, time.Since(started), err)
	}
}

func (*Metrics) Notify(string) {}

func (x *Metrics) EndPhase(err error) {
	x.mu.Lock()
	phase, started := x.phase, x.started
	x.mu.Unlock()
	x.m.ObservePhase(phase, time.Since(started), err)
}
