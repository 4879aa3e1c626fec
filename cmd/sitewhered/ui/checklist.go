package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/micro-sensor/sitewhere/pkg/sdk/progress"
)

// Checklist redraws lifecycle progress snapshots in place. Phases sit at
// the left margin with their steps indented below.
type Checklist struct {
	w io.Writer

	mu            sync.Mutex
	steps         []progress.Step
	renderedLines int
}

func NewChecklist(w io.Writer) *Checklist {
	return &Checklist{w: w}
}

// OnSnapshot is a progress.Reporter.
func (c *Checklist) OnSnapshot(snap progress.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = snap.Steps
	c.redraw()
}

// redraw reprints all lines in place. Caller must hold c.mu.
func (c *Checklist) redraw() {
	if c.renderedLines > 0 {
		fmt.Fprintf(c.w, "\033[%dA", c.renderedLines)
	}
	for _, s := range c.steps {
		fmt.Fprintf(c.w, "\r%s\033[K\n", Line(s))
	}
	for i := len(c.steps); i < c.renderedLines; i++ {
		fmt.Fprint(c.w, "\r\033[K\n")
	}
	c.renderedLines = len(c.steps)
}

// Line renders one checklist entry without a trailing newline.
func Line(s progress.Step) string {
	indent := "  "
	if s.ParentID != "" {
		indent = "    "
	}
	var icon, label string
	switch s.Status {
	case progress.Running:
		icon, label = Accent("●"), s.Title
	case progress.Done:
		icon, label = Success("✓"), s.Title
	case progress.Failed:
		icon, label = ErrorStyle.Render("✗"), ErrorStyle.Render(s.Title)
	default:
		icon, label = Muted("○"), Muted(s.Title)
	}
	line := indent + icon + " " + label
	if s.Message != "" {
		line += " " + Muted(s.Message)
	}
	return line
}
