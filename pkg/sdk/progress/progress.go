// Package progress keeps an ordered checklist of lifecycle phases and steps
// and emits a snapshot on every change.
package progress

import (
	"strings"
	"sync"
)

// Status represents the state of a checklist entry.
type Status string

const (
	Pending Status = "pending"
	Running Status = "running"
	Done    Status = "done"
	Failed  Status = "failed"
)

// Step is one checklist entry. Phases are top-level entries; lifecycle steps
// carry their phase as ParentID.
type Step struct {
	ID       string
	ParentID string // empty for phases
	Title    string
	Message  string // latest notification or failure cause
	Status   Status
}

// Snapshot is the full checklist, emitted on every change.
type Snapshot struct {
	Steps []Step
}

// Reporter receives a snapshot whenever any entry transitions.
type Reporter func(Snapshot)

// Tracker holds the checklist. It is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	steps    []Step
	stepByID map[string]int
	reporter Reporter
}

// New creates an empty tracker.
func New(reporter Reporter) *Tracker {
	return &Tracker{
		stepByID: make(map[string]int),
		reporter: reporter,
	}
}

// Start marks the entry running, adding it under parentID if it is new, and
// returns an end handle. Call the handle with nil on success or with the
// failure cause. Only the first call to the handle takes effect.
func (t *Tracker) Start(id, parentID, title string) func(error) {
	id = normalizeID(id)

	t.mu.Lock()
	idx := t.ensureLocked(id, strings.TrimSpace(parentID), title)
	t.steps[idx].Status = Running
	t.steps[idx].Message = ""
	t.emitLocked()
	t.mu.Unlock()

	var once sync.Once
	return func(err error) {
		once.Do(func() { t.finish(id, err) })
	}
}

// Note attaches a message to an existing entry. Unknown ids are ignored.
func (t *Tracker) Note(id, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx, ok := t.stepByID[normalizeID(id)]
	if !ok {
		return
	}
	t.steps[idx].Message = strings.TrimSpace(message)
	t.emitLocked()
}

// Snapshot returns a copy of the current checklist.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) finish(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.ensureLocked(id, "", "")
	if err != nil {
		t.steps[idx].Status = Failed
		t.steps[idx].Message = strings.TrimSpace(err.Error())
	} else {
		t.steps[idx].Status = Done
	}
	t.emitLocked()
}

func (t *Tracker) ensureLocked(id, parentID, title string) int {
	if idx, ok := t.stepByID[id]; ok {
		return idx
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = id
	}
	t.stepByID[id] = len(t.steps)
	t.steps = append(t.steps, Step{ID: id, ParentID: parentID, Title: title, Status: Pending})
	return len(t.steps) - 1
}

func (t *Tracker) emitLocked() {
	if t.reporter == nil {
		return
	}
	t.reporter(t.snapshotLocked())
}

func (t *Tracker) snapshotLocked() Snapshot {
	snap := make([]Step, len(t.steps))
	copy(snap, t.steps)
	return Snapshot{Steps: snap}
}

func normalizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return "unnamed"
	}
	return id
}
