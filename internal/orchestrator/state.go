package orchestrator

// State is the orchestrator's position in the compile cycle.
type State int

const (
	StateIdle State = iota
	StateWatching
	StateCompiling
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateCompiling:
		return "compiling"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event drives a state transition.
type Event string

const (
	EventStart     Event = "start"
	EventInvalid   Event = "invalid"
	EventWatchRun  Event = "watch-run"
	EventSucceeded Event = "done-succeeded"
	EventFailed    Event = "done-failed"
	EventSettle    Event = "settle"
)

// transitions lists every expected transition. A Done arriving in Watching
// is the initial compilation, which has no watch-run.
var transitions = map[State]map[Event]State{
	StateIdle: {
		EventStart: StateWatching,
	},
	StateWatching: {
		EventInvalid:   StateWatching,
		EventWatchRun:  StateCompiling,
		EventSucceeded: StateSucceeded,
		EventFailed:    StateFailed,
	},
	StateCompiling: {
		EventWatchRun:  StateCompiling,
		EventSucceeded: StateSucceeded,
		EventFailed:    StateFailed,
	},
	StateSucceeded: {
		EventSettle: StateWatching,
	},
	StateFailed: {
		EventSettle: StateWatching,
	},
}

// eventTargets is where each event leads when it arrives in a state that
// does not declare it.
var eventTargets = map[Event]State{
	EventStart:     StateWatching,
	EventInvalid:   StateWatching,
	EventWatchRun:  StateCompiling,
	EventSucceeded: StateSucceeded,
	EventFailed:    StateFailed,
	EventSettle:    StateWatching,
}

// next returns the state after ev and whether the transition is declared.
func next(from State, ev Event) (State, bool) {
	if to, ok := transitions[from][ev]; ok {
		return to, true
	}
	return eventTargets[ev], false
}
