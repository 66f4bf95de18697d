package accountsync

import "fmt"

type State string

const (
	StateIdle                State = "idle"
	StateSessionEstablishing State = "session_establishing"
	StateIdentityResolved    State = "identity_resolved"
	StateSyncingOrders       State = "syncing_orders"
	StateSyncingReturns      State = "syncing_returns"
	StateSyncingPayouts      State = "syncing_payouts"
	StateDone                State = "done"
	StateAborted             State = "aborted"
)

var next = map[State]State{
	StateIdle:                StateSessionEstablishing,
	StateSessionEstablishing: StateIdentityResolved,
	StateIdentityResolved:    StateSyncingOrders,
	StateSyncingOrders:       StateSyncingReturns,
	StateSyncingReturns:      StateSyncingPayouts,
	StateSyncingPayouts:      StateDone,
}

func (s State) Terminal() bool { return s == StateDone || s == StateAborted }

type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}

// machine walks the fixed pass order. Aborted is reachable from every
// non-terminal state.
type machine struct {
	state State
}

func (m *machine) to(s State) error {
	switch {
	case m.state.Terminal():
		return &TransitionError{From: m.state, To: s}
	case s == StateAborted, next[m.state] == s:
		m.state = s
		return nil
	default:
		return &TransitionError{From: m.state, To: s}
	}
}
