package lifecycle

// Monitor receives progress notifications while a composite executes.
//
// Composites call BeginPhase once, then StepProgress and StepDone around each
// step, then EndPhase once. Components may call Notify from inside their
// lifecycle operations.
type Monitor interface {
	BeginPhase(name string, total int)
	StepProgress(name string)
	StepDone(name string, err error)
	Notify(message string)
	EndPhase(err error)
}

// NopMonitor discards every notification.
type NopMonitor struct{}

func (NopMonitor) BeginPhase(string, int) {}
func (NopMonitor) StepProgress(string) {}
func (NopMonitor) StepDone(string, error) {}
func (NopMonitor) Notify(string) {}
func (NopMonitor) EndPhase(error) {}

func monitorOrNop(m Monitor) Monitor {
	if m == nil {
		return NopMonitor{}
	}
	return m
}
