package lifecycle

import "github.com/micro-sensor/sitewhere/internal/check"

// State describes where a component is in its lifecycle.
type State uint8

const (
	StateCreated State = iota
	StateInitializing
	StateInitialized
	StateStarting
	StateStarted
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		check.Assertf(false, "unknown lifecycle state: %d", s)
		return "unknown"
	}
}

// Kind is the lifecycle operation a step invokes.
type Kind uint8

const (
	KindInitialize Kind = iota
	KindStart
	KindStop
)

func (k Kind) String() string {
	switch k {
	case KindInitialize:
		return "initialize"
	case KindStart:
		return "start"
	case KindStop:
		return "stop"
	default:
		check.Assertf(false, "unknown lifecycle kind: %d", k)
		return "unknown"
	}
}
