package session

import "fmt"

// State is a session lifecycle state.
type State string

const (
	StateUninitialized       State = "uninitialized"
	StatePendingValidation   State = "pending_validation"
	StateActiveGuest         State = "active_guest"
	StateActiveAuthenticated State = "active_authenticated"
	StateTerminated          State = "terminated"
)

// transitions is the allowed lifecycle graph. Authentication is one-way:
// an authenticated session never drops back to guest, it terminates.
var transitions = map[State][]State{
	StateUninitialized:       {StatePendingValidation},
	StatePendingValidation:   {StateActiveGuest, StateTerminated},
	StateActiveGuest:         {StateActiveAuthenticated, StateTerminated},
	StateActiveAuthenticated: {StateTerminated},
	StateTerminated:          nil,
}

// CanTransition reports whether the lifecycle allows moving from one state
// to another.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s *Session) transition(to State) error {
	if !CanTransition(s.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, to)
	}
	s.State = to
	return nil
}

// Active reports whether the session is in a usable state.
func (s State) Active() bool {
	return s == StateActiveGuest || s == StateActiveAuthenticated
}
