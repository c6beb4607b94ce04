package ledger

import (
	"errors"
	"fmt"
)

// CorruptionError describes a ledger line with no valid transition.
type CorruptionError struct {
	// Line is the 1-based line number within the ledger.
	Line int

	// From is the state the line was applied to.
	From State

	// Entry is the offending entry.
	Entry Entry
}

// Error implements the error interface.
func (e *CorruptionError) Error() string {
	if e.Entry.Malformed {
		return fmt.Sprintf("ledger line %d: malformed entry %q", e.Line, e.Entry.Raw)
	}
	return fmt.Sprintf("ledger line %d: no transition from %s on %s", e.Line, e.From, e.Entry.Action)
}

// IsCorruption returns true if err is or wraps a CorruptionError.
func IsCorruption(err error) bool {
	var ce *CorruptionError
	return errors.As(err, &ce)
}

// Fold derives the current state of a run from its ledger entries for one
// script identity. It is a pure function of its inputs.
//
// Entries for other script identities are skipped. The first entry without a
// valid transition makes the result INVALID, and INVALID is sticky: later
// entries are still scanned but cannot leave it.
func Fold(entries []Entry, scriptID string) State {
	state := StateNew
	for _, e := range entries {
		if !e.matches(scriptID) {
			continue
		}
		state = step(state, e)
	}
	return state
}

// Step is one line of a Trace.
type Step struct {
	Line    int
	Entry   Entry
	Skipped bool // entry belongs to another script identity
	Before  State
	After   State
	Err     *CorruptionError
}

// Trace replays entries like Fold and records every step, for diagnosing
// INVALID runs. The final state of a trace always equals Fold's result.
func Trace(entries []Entry, scriptID string) []Step {
	steps := make([]Step, 0, len(entries))
	state := StateNew
	for i, e := range entries {
		s := Step{Line: i + 1, Entry: e, Before: state}
		if !e.matches(scriptID) {
			s.Skipped = true
			s.After = state
			steps = append(steps, s)
			continue
		}

		state = step(state, e)
		s.After = state
		if state == StateInvalid && s.Before != StateInvalid {
			s.Err = &CorruptionError{Line: i + 1, From: s.Before, Entry: e}
		}
		steps = append(steps, s)
	}
	return steps
}

func step(state State, e Entry) State {
	if state == StateInvalid || e.Malformed || !e.Action.Valid() {
		return StateInvalid
	}
	next, ok := Transition(state, e.Action)
	if !ok {
		return StateInvalid
	}
	return next
}
