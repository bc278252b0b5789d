package query

import "sync/atomic"

// State is a per-lookup progress marker per spec.md §4.2/§5, advanced
// linearly through a single resolution and readable concurrently for
// observability. It never drives control flow itself.
type State int32

const (
	StateResolving State = iota
	StateScanning
	StateMerging
	StateEnriching
	StateDone
	StateEmpty
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateScanning:
		return "scanning"
	case StateMerging:
		return "merging"
	case StateEnriching:
		return "enriching"
	case StateDone:
		return "done"
	case StateEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

type lookupState struct {
	v atomic.Int32
}

func (l *lookupState) set(s State) { l.v.Store(int32(s)) }

func (l *lookupState) get() State { return State(l.v.Load()) }
