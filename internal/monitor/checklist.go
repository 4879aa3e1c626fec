package monitor

import (
	"sync"

	"github.com/micro-sensor/sitewhere/internal/lifecycle"
	"github.com/micro-sensor/sitewhere/pkg/sdk/progress"
)

// Checklist mirrors lifecycle progress into a progress.Tracker. Phases are
// top-level entries and steps are keyed "<phase>/<step>".
type Checklist struct {
	tracker *progress.Tracker

	mu       sync.Mutex
	phase    string
	endPhase func(error)
	endStep  map[string]func(error)
	running  string
}

var _ lifecycle.Monitor = (*Checklist)(nil)

func NewChecklist(tracker *progress.Tracker) *Checklist {
	return &Checklist{tracker: tracker, endStep: make(map[string]func(error))}
}

func (c *Checklist) BeginPhase(name string, _ int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = name
	c.running = ""
	c.endPhase = c.tracker.Start(name, "", name)
}

func (c *Checklist) StepProgress(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.phase + "/" + name
	c.endStep[id] = c.tracker.Start(id, c.phase, name)
	c.running = id
}

func (c *Checklist) StepDone(name string, err error) {
	c.mu.Lock()
	id := c.phase + "/" + name
	end, ok := c.endStep[id]
	delete(c.endStep, id)
	if c.running == id {
		c.running = ""
	}
	c.mu.Unlock()

	if ok {
		end(err)
	}
}

func (c *Checklist) Notify(message string) {
	c.mu.Lock()
	id := c.running
	if id == "" {
		id = c.phase
	}
	c.mu.Unlock()
	c.tracker.Note(id, message)
}

func (c *Checklist) EndPhase(err error) {
	c.mu.Lock()
	end := c.endPhase
	c.endPhase = nil
	c.mu.Unlock()

	if end != nil {
		end(err)
	}
}
