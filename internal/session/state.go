package session

import (
	"errors"
	"fmt"
	"slices"
)

// State is the session lifecycle stage a UI mirrors to enable or disable
// its controls.
type State string

const (
	StateIdle      State = "idle"
	StatePreparing State = "preparing"
	StateSampling  State = "sampling"
	StateRendering State = "rendering"
	StateError     State = "error"
)

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateIdle:      {StatePreparing, StateSampling, StateRendering},
	StatePreparing: {StateIdle, StateError},
	StateSampling:  {StateRendering, StateIdle, StateError},
	StateRendering: {StateIdle, StateError},
	StateError:     {StatePreparing, StateSampling, StateRendering, StateIdle},
}

// ErrBusy is returned when an entry point is called while another one is
// still running.
var ErrBusy = errors.New("session busy")

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// Listener is notified after every state change.
type Listener func(from, to State)

// transition moves the session to state to and notifies listeners.
// Listeners run after the lock is released.
func (s *Session) transition(to State) error {
	s.mu.Lock()
	from := s.state
	if !CanTransition(from, to) {
		s.mu.Unlock()
		if from == StatePreparing || from == StateSampling || from == StateRendering {
			return fmt.Errorf("%w: %s", ErrBusy, from)
		}
		return fmt.Errorf("invalid transition %s -> %s", from, to)
	}
	s.state = to
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l(from, to)
	}
	return nil
}

// settle moves the session to Idle on success or Error on failure,
// whatever stage it stopped in.
func (s *Session) settle(err error) {
	to := StateIdle
	if err != nil {
		to = StateError
	}
	if s.State() == to {
		return
	}
	if terr := s.transition(to); terr != nil {
		s.logger.Error("session state stuck", "state", s.State(), "target", to, "error", terr)
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnTransition registers a listener.
func (s *Session) OnTransition(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}
