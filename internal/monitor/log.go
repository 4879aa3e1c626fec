// Package monitor provides lifecycle.Monitor implementations that report
// phase and step progress to logs, traces, metrics and a checklist.
package monitor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/micro-sensor/sitewhere/internal/lifecycle"
)

// Log writes lifecycle progress to a structured logger.
type Log struct {
	log *slog.Logger

	mu      sync.Mutex
	phase   string
	started time.Time
	steps   map[string]time.Time
}

var _ lifecycle.Monitor = (*Log)(nil)

// NewLog creates a logging monitor. A nil logger uses slog.Default.
func NewLog(log *slog.Logger) *Log {
	if log == nil {
		log = slog.Default()
	}
	return &Log{log: log.With("component", "lifecycle"), steps: make(map[string]time.Time)}
}

func (l *Log) BeginPhase(name string, total int) {
	l.mu.Lock()
	l.phase = name
	l.started = time.Now()
	clear(l.steps)
	l.mu.Unlock()
	l.log.Info("phase started", "phase", name, "steps", total)
}

func (l *Log) StepProgress(name string) {
	l.mu.Lock()
	l.steps[name] = time.Now()
	phase := l.phase
	l.mu.Unlock()
	l.log.Debug("step running", "phase", phase, "step", name)
}

func (l *Log) StepDone(name string, err error) {
	l.mu.Lock()
	elapsed := time.Since(l.steps[name])
	delete(l.steps, name)
	phase := l.phase
	l.mu.Unlock()

	if err != nil {
		l.log.Warn("step failed", "phase", phase, "step", name, "elapsed", elapsed, "err", err)
		return
	}
	l.log.Debug("step done", "phase", phase, "step", name, "elapsed", elapsed)
}

func (l *Log) Notify(message string) {
	l.mu.Lock()
	phase := l.phase
	l.mu.Unlock()
	l.log.Debug(message, "phase", phase)
}

func (l *Log) EndPhase(err error) {
	l.mu.Lock()
	phase, elapsed := l.phase, time.Since(l.started)
	l.mu.Unlock()

	if err != nil {
		l.log.Error("phase failed", "phase", phase, "elapsed", elapsed, "err", err)
		return
	}
	l.log.Info("phase completed", "phase", phase, "elapsed", elapsed)
}
