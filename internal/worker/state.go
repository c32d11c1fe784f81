package worker

import "fmt"

// State is the worker lifecycle phase.
type State int32

const (
	StateStarting State = iota
	StateListening
	StateIdle
	StateHandling
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateIdle:
		return "idle"
	case StateHandling:
		return "handling"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Serving reports whether the worker can take a connection.
func (s State) Serving() bool {
	return s == StateListening || s == StateIdle || s == StateHandling
}
