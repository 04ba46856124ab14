package spawn

import "fmt"

// WorkerState is the protocol state of a worker.
type WorkerState int

const (
	StateIdle WorkerState = iota
	StateAwaitDispatch
	StateRunning
	StateTerminated
)

func (s WorkerState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAwaitDispatch:
		return "AWAIT_DISPATCH"
	case StateRunning:
		return "RUNNING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return fmt.Sprintf("WorkerState(%d)", int(s))
	}
}

var validTransitions = map[WorkerState]map[WorkerState]bool{
	StateIdle: {
		StateAwaitDispatch: true, // first NEXT sent
	},
	StateAwaitDispatch: {
		StateRunning:    true, // WORK resolved
		StateTerminated: true, // NONE received
	},
	StateRunning: {
		StateAwaitDispatch: true, // job finished, NEXT sent
	},
	StateTerminated: {},
}

// ValidateTransition reports whether a worker may move from one state to
// another.
func ValidateTransition(from, to WorkerState) error {
	allowed, ok := validTransitions[from]
	if !ok {
		return fmt.Errorf("unknown worker state: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid worker transition from %s to %s", from, to)
	}
	return nil
}

// MasterPhase is the protocol phase of the master.
type MasterPhase int

const (
	PhaseListening MasterPhase = iota
	PhaseDispatching
)

func (p MasterPhase) String() string {
	switch p {
	case PhaseListening:
		return "LISTENING"
	case PhaseDispatching:
		return "DISPATCHING"
	default:
		return fmt.Sprintf("MasterPhase(%d)", int(p))
	}
}
