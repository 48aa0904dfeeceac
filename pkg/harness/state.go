package harness

// RunState is the lifecycle state of a run
type RunState string

const (
	StateDisconnected RunState = "disconnected"
	StateConnected    RunState = "connected"
	StateHandshaking  RunState = "handshaking"
	StateReady        RunState = "ready"
	StateExecuting    RunState = "executing"
	StateDone         RunState = "done"
	StateAborted      RunState = "aborted"
)

// transitions lists the states reachable from each state. Any non-terminal
// state may abort.
var transitions = map[RunState][]RunState{
	StateDisconnected: {StateConnected, StateAborted},
	StateConnected:    {StateHandshaking, StateAborted},
	StateHandshaking:  {StateReady, StateAborted},
	StateReady:        {StateExecuting, StateAborted},
	StateExecuting:    {StateDone, StateAborted},
}

// IsTerminal reports whether no further transition is possible
func (s RunState) IsTerminal() bool {
	return s == StateDone || s == StateAborted
}

// CanTransition reports whether next may follow s
func (s RunState) CanTransition(next RunState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s RunState) String() string {
	return string(s)
}
