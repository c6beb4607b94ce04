package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Read decodes every non-blank line of r. Lines have no length limit; an
// overlong garbage line comes back as a malformed entry like any other.
func Read(r io.Reader) ([]Entry, error) {
	var entries []Entry
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if strings.TrimSpace(line) != "" {
			entries = append(entries, ParseLine(line))
		}
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read ledger: %w", err)
		}
	}
}

// ReadFile reads the ledger at path. A missing file is an empty ledger.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// StateOf folds the ledger at path for scriptID.
func StateOf(path, scriptID string) (State, error) {
	entries, err := ReadFile(path)
	if err != nil {
		return StateInvalid, err
	}
	return Fold(entries, scriptID), nil
}

// Writer appends entries to one ledger file.
//
// The file is only ever opened with O_APPEND; existing lines are never
// rewritten or truncated. Each append is synced before returning so a crash
// right after an append still leaves the line on disk.
type Writer struct {
	mu       sync.Mutex
	f        *os.File
	scriptID string
	now      func() time.Time
}

// OpenWriter opens (creating if needed) the ledger at path for appending
// entries stamped with scriptID. now supplies timestamps; nil means time.Now.
func OpenWriter(path, scriptID string, now func() time.Time) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger for append: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &Writer{f: f, scriptID: scriptID, now: now}, nil
}

// Append writes one entry for action.
func (w *Writer) Append(action Action) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	e := Entry{Action: action, Timestamp: Timestamp(w.now()), ScriptID: w.scriptID}
	if _, err := w.f.WriteString(e.String() + "\n"); err != nil {
		return fmt.Errorf("append %s: %w", action, err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("append %s: sync: %w", action, err)
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	return w.f.Close()
}

// AppendFile opens path, appends one entry and closes it again.
func AppendFile(path string, action Action, scriptID string, now func() time.Time) error {
	w, err := OpenWriter(path, scriptID, now)
	if err != nil {
		return err
	}
	if err := w.Append(action); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
