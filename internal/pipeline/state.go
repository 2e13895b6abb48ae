package pipeline

// State is the pipeline lifecycle. Transitions are one-directional:
// Running → Draining → Flushing → Terminated.
type State int32

const (
	StateRunning State = iota
	StateDraining
	StateFlushing
	StateTerminated
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateFlushing:
		return "flushing"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
