// Package picker holds time-slot picker sessions: the selection state of one
// booking form, recomputed against fetched bookings on every change.
package picker

import (
	"errors"
	"fmt"

	"bookingslots/internal/slots"
)

// ErrInvalidTransition is returned when a toggle would move the selection
// into a state the variant cannot reach from the current one.
var ErrInvalidTransition = errors.New("invalid selection transition")

// State is the selection state of a picker session.
type State string

const (
	StateEmpty   State = "empty"
	StatePartial State = "partial"
	StateRange   State = "range"
)

// stateOf derives the state from the number of toggled slots.
func stateOf(toggles int) State {
	switch {
	case toggles == 0:
		return StateEmpty
	case toggles == 1:
		return StatePartial
	default:
		return StateRange
	}
}

// FSM manages selection state transitions.
type FSM struct {
	transitions map[State][]State
}

// NewFSM creates the transition table for a picker variant. Overnight
// variants select up to the day boundary, so one click can go straight from
// Empty to Range.
func NewFSM(variant slots.Variant) *FSM {
	fromEmpty := []State{StateEmpty, StatePartial}
	if variant != slots.VariantRange {
		fromEmpty = append(fromEmpty, StateRange)
	}
	return &FSM{
		transitions: map[State][]State{
			StateEmpty:   fromEmpty,
			StatePartial: {StateEmpty, StatePartial, StateRange},
			StateRange:   {StateEmpty, StatePartial, StateRange},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to State) bool {
	allowed, ok := f.transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition checks a move from one state to another.
func (f *FSM) Transition(from, to State) error {
	if !f.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
