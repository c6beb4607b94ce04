package ledger

import (
	"fmt"
	"strings"
	"time"
)

// Action is the event token written in the first field of a ledger line.
type Action string

const (
	ActionQueued   Action = "QUEUED"
	ActionStarted  Action = "STARTED"
	ActionFinished Action = "FINISHED"
	ActionFailed   Action = "FAILED"
	ActionKilled   Action = "KILLED"
)

// actionWidth is the padded width of the action field (len("FINISHED")).
const actionWidth = 8

// Separator joins the three fields of a ledger line.
const Separator = " | "

// TimestampLayout is the wall-clock format used in ledger lines, manifests and
// history file names.
const TimestampLayout = "2006-01-02_15-04-05"

// Timestamp formats t with TimestampLayout.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Valid reports whether a is one of the five known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionQueued, ActionStarted, ActionFinished, ActionFailed, ActionKilled:
		return true
	}
	return false
}

// Entry is one ledger line.
type Entry struct {
	Action    Action
	Timestamp string
	ScriptID  string

	// Malformed is set when the line could not be split into three fields.
	// A malformed entry matches every script identity and is never a valid
	// transition.
	Malformed bool

	// Raw is the original line, kept for diagnostics.
	Raw string
}

// String renders e as a ledger line without the trailing newline.
// The action is right-aligned to a fixed width.
func (e Entry) String() string {
	return fmt.Sprintf("%*s", actionWidth, string(e.Action)) + Separator + e.Timestamp + Separator + e.ScriptID
}

// ParseLine decodes one ledger line. It never fails: lines without exactly
// three '|'-separated fields come back with Malformed set.
func ParseLine(line string) Entry {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, "|")
	if len(fields) != 3 {
		return Entry{Malformed: true, Raw: line}
	}
	return Entry{
		Action:    Action(strings.TrimSpace(fields[0])),
		Timestamp: strings.TrimSpace(fields[1]),
		ScriptID:  strings.TrimSpace(fields[2]),
		Raw:       line,
	}
}

// matches reports whether e belongs to the lineage of scriptID.
// An empty scriptID matches everything.
func (e Entry) matches(scriptID string) bool {
	return scriptID == "" || e.Malformed || e.ScriptID == scriptID
}
