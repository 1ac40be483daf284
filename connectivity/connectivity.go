// Package connectivity defines the subchannel/channel connectivity
// state machine named in spec.md §2 ("Subchannel") and §3
// ("Subchannel. State transitions obey...").
package connectivity

// State is one node in the connectivity state machine.
type State int

const (
	Idle State = iota
	Connecting
	Ready
	TransientFailure
	Shutdown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Connecting:
		return "CONNECTING"
	case Ready:
		return "READY"
	case TransientFailure:
		return "TRANSIENT_FAILURE"
	case Shutdown:
		return "SHUTDOWN"
	default:
		return "INVALID_STATE"
	}
}

// Reporter is implemented by anything that exposes the
// getConnectivityState/watchConnectivityState API from spec.md §6.
type Reporter interface {
	GetState(tryToConnect bool) State
	WatchState(current State, done <-chan struct{}) <-chan State
}
