package ledger

import (
	"fmt"
	"strings"
)

// State is a run's derived lifecycle state. It is never stored.
type State int

const (
	StateNew State = iota
	StateQueued
	StateRunning
	StateFinished
	StateFailed
	StateInvalid
)

// AllStates lists every state in report order.
var AllStates = []State{StateRunning, StateQueued, StateFinished, StateFailed, StateNew, StateInvalid}

var stateNames = map[State]string{
	StateNew:      "NEW",
	StateQueued:   "QUEUED",
	StateRunning:  "RUNNING",
	StateFinished: "FINISHED",
	StateFailed:   "FAILED",
	StateInvalid:  "INVALID",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ParseState is the inverse of State.String (case-insensitive).
func ParseState(name string) (State, error) {
	for s, n := range stateNames {
		if strings.EqualFold(n, name) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown state %q", name)
}

// MarshalText implements encoding.TextMarshaler so states render by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Transition applies one action to from. ok is false when the table has no
// edge for (from, action); the caller decides what that means.
//
//	NEW               --QUEUED-->   QUEUED
//	QUEUED            --STARTED-->  RUNNING
//	QUEUED            --KILLED-->   NEW
//	RUNNING           --FINISHED--> FINISHED
//	RUNNING           --FAILED-->   FAILED
//	FINISHED | FAILED --QUEUED-->   QUEUED
//	FINISHED | FAILED --KILLED-->   unchanged
func Transition(from State, action Action) (to State, ok bool) {
	switch from {
	case StateNew:
		if action == ActionQueued {
			return StateQueued, true
		}
	case StateQueued:
		switch action {
		case ActionStarted:
			return StateRunning, true
		case ActionKilled:
			return StateNew, true
		}
	case StateRunning:
		switch action {
		case ActionFinished:
			return StateFinished, true
		case ActionFailed:
			return StateFailed, true
		}
	case StateFinished, StateFailed:
		switch action {
		case ActionQueued:
			return StateQueued, true
		case ActionKilled:
			return from, true
		}
	}
	return StateInvalid, false
}
