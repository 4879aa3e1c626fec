package instance

import "github.com/micro-sensor/sitewhere/internal/check"

// Phase is the orchestrator's position in the boot and shutdown sequence.
type Phase uint8

const (
	PhaseUnstarted Phase = iota
	PhaseInitializing
	PhaseInitialized
	PhaseStarting
	PhaseStarted
	PhaseStopping
	PhaseStopped
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseUnstarted:
		return "unstarted"
	case PhaseInitializing:
		return "initializing"
	case PhaseInitialized:
		return "initialized"
	case PhaseStarting:
		return "starting"
	case PhaseStarted:
		return "started"
	case PhaseStopping:
		return "stopping"
	case PhaseStopped:
		return "stopped"
	case PhaseFailed:
		return "failed"
	}
	check.Assertf(false, "unknown instance phase: %d", p)
	return "unknown"
}
