// Package lifecycle holds the run state shared by every long-running worker.
package lifecycle

// State is a worker's lifecycle position: Running → Stopping → Stopped.
type State uint32

const (
	StateRunning State = iota
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
