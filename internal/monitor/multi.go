package monitor

import "github.com/micro-sensor/sitewhere/internal/lifecycle"

// Multi fans every notification out to each monitor in order.
type Multi []lifecycle.Monitor

var _ lifecycle.Monitor = Multi(nil)

// Join builds a Multi, dropping nil monitors.
func Join(monitors ...lifecycle.Monitor) Multi {
	out := make(Multi, 0, len(monitors))
	for _, m := range monitors {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

func (ms Multi) BeginPhase(name string, total int) {
	for _, m := range ms {
		m.BeginPhase(name, total)
	}
}

func (ms Multi) StepProgress(name string) {
	for _, m := range ms {
		m.StepProgress(name)
	}
}

func (ms Multi) StepDone(name string, err error) {
	for _, m := range ms {
		m.StepDone(name, err)
	}
}

func (ms Multi) Notify(message string) {
	for _, m := range ms {
		m.Notify(message)
	}
}

func (ms Multi) EndPhase(err error) {
	for _, m := range ms {
		m.EndPhase(err)
	}
}
