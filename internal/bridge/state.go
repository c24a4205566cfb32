package bridge

// State is a job's position in the bridge lifecycle
type State int

const (
	StateSubmitting State = iota
	StateCacheHit
	StateResolving
	StateQueued
	StateStreaming
	StateDraining
	StateCompleted
	StateErrored
)

var stateNames = map[State]string{
	StateSubmitting: "submitting",
	StateCacheHit:   "cache_hit",
	StateResolving:  "resolving",
	StateQueued:     "queued",
	StateStreaming:  "streaming",
	StateDraining:   "draining",
	StateCompleted:  "completed",
	StateErrored:    "errored",
}

// Allowed transitions other than the universal move to StateErrored
var transitions = map[State][]State{
	StateSubmitting: {StateCacheHit, StateQueued},
	StateCacheHit:   {StateResolving},
	StateResolving:  {StateCompleted},
	StateQueued:     {StateStreaming},
	StateStreaming:  {StateDraining},
	StateDraining:   {StateCompleted},
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transitions or events are allowed
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateErrored
}

// CanTransition reports whether s may move to next
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateErrored {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
