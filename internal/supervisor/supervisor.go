package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/roach88/sweeps/internal/ledger"
	"github.com/roach88/sweeps/internal/project"
)

// Outcome classifies how an attempt ended.
type Outcome int

const (
	// OutcomeFinished means the program exited 0 and FINISHED was appended.
	OutcomeFinished Outcome = iota + 1
	// OutcomeFailed means the program exited non-zero (FAILED appended) or
	// could not be started (nothing appended).
	OutcomeFailed
	// OutcomeInterrupted means the attempt was cancelled and the child was
	// killed. No ledger entry is appended; the run stays RUNNING.
	OutcomeInterrupted
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeFinished:
		return "finished"
	case OutcomeFailed:
		return "failed"
	case OutcomeInterrupted:
		return "interrupted"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Attempt is one execution of the external program for one run folder.
type Attempt struct {
	RunID      string
	RunPath    string
	ScriptPath string
	ScriptID   string
	LogPath    string
	LedgerPath string
}

// NewAttempt builds the attempt for run id of p with bin/<script>.
func NewAttempt(p *project.Project, id, script, scriptID string) Attempt {
	return Attempt{
		RunID:      id,
		RunPath:    p.RunPath(id),
		ScriptPath: p.ScriptPath(script),
		ScriptID:   scriptID,
		LogPath:    p.LogPath(id),
		LedgerPath: p.LedgerPath(id),
	}
}

// Result is what an attempt produced.
type Result struct {
	Outcome Outcome

	// ExitCode is the program's exit status, or -1 when it was killed by a
	// signal, interrupted or never started.
	ExitCode int
}

// Supervisor runs attempts of one external executable.
//
// The program is invoked as `<executable> <script> <run-folder>` with stdout
// and stderr appended to the run's log.
//
// Thread-safety: a Supervisor holds no per-attempt state and may run attempts
// for different run folders concurrently. Two attempts on the same run folder
// must never overlap; the scheduler guarantees that.
type Supervisor struct {
	executable string
	now        func() time.Time
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithClock overrides the clock used for log headers and ledger entries.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		s.now = now
	}
}

// New creates a Supervisor for executable.
func New(executable string, opts ...Option) *Supervisor {
	s := &Supervisor{executable: executable, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes exactly one attempt.
//
// Order of effects:
//  1. open log and ledger for append, write the log header
//  2. start the program
//  3. append STARTED, before waiting, so a crash leaves the run RUNNING
//  4. on exit 0 append FINISHED; otherwise log the exit code and append FAILED
//
// The child runs in its own process group. If ctx is cancelled while the
// program runs, a line naming the cause is logged, the group is killed, and
// Run returns OutcomeInterrupted with an error wrapping context.Cause(ctx).
// A non-zero exit observed after cancellation is treated the same way and
// appends nothing. Log and ledger are closed on every path.
func (s *Supervisor) Run(ctx context.Context, a Attempt) (res Result, err error) {
	res = Result{ExitCode: -1}

	logFile, err := os.OpenFile(a.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return res, fmt.Errorf("run %s: open log: %w", a.RunID, err)
	}
	defer logFile.Close()

	status, err := ledger.OpenWriter(a.LedgerPath, a.ScriptID, s.now)
	if err != nil {
		return res, fmt.Errorf("run %s: %w", a.RunID, err)
	}
	defer status.Close()

	writeLine(logFile, project.Header("LOG FILE OPENED "+ledger.Timestamp(s.now()), ""))
	defer func() {
		writeLine(logFile, project.Header("LOG FILE CLOSED "+ledger.Timestamp(s.now()), ""))
	}()

	if ctx.Err() != nil {
		writeLine(logFile, signalLine(ctx))
		res.Outcome = OutcomeInterrupted
		return res, fmt.Errorf("run %s interrupted before start: %w", a.RunID, context.Cause(ctx))
	}

	cmd := exec.Command(s.executable, a.ScriptPath, a.RunPath)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	isolate(cmd)

	if err := cmd.Start(); err != nil {
		writeLine(logFile, fmt.Sprintf("SCRIPT FAILED TO START: %v", err))
		res.Outcome = OutcomeFailed
		return res, fmt.Errorf("run %s: start: %w", a.RunID, err)
	}

	if err := status.Append(ledger.ActionStarted); err != nil {
		// Never leave a child running that the ledger does not know about.
		_ = kill(cmd)
		_ = cmd.Wait()
		res.Outcome = OutcomeFailed
		return res, fmt.Errorf("run %s: %w", a.RunID, err)
	}
	slog.Debug("run started", "run", a.RunID, "pid", cmd.Process.Pid)

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		writeLine(logFile, signalLine(ctx))
		if err := kill(cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
			slog.Error("failed to kill run", "run", a.RunID, "error", err)
		}
		<-done
		return s.interrupted(ctx, a, res)
	}

	// A child that died while the attempt was being cancelled was taken down
	// by the cancellation, not by its own failure.
	if waitErr != nil && ctx.Err() != nil {
		writeLine(logFile, signalLine(ctx))
		return s.interrupted(ctx, a, res)
	}

	if waitErr == nil {
		res.Outcome = OutcomeFinished
		res.ExitCode = 0
		if err := status.Append(ledger.ActionFinished); err != nil {
			return res, fmt.Errorf("run %s: %w", a.RunID, err)
		}
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}
	res.Outcome = OutcomeFailed
	writeLine(logFile, fmt.Sprintf("SCRIPT RETURNED WITH EXIT CODE %d", res.ExitCode))
	if err := status.Append(ledger.ActionFailed); err != nil {
		return res, fmt.Errorf("run %s: %w", a.RunID, err)
	}
	if exitErr == nil {
		return res, fmt.Errorf("run %s: wait: %w", a.RunID, waitErr)
	}
	return res, nil
}

func (s *Supervisor) interrupted(ctx context.Context, a Attempt, res Result) (Result, error) {
	res.Outcome = OutcomeInterrupted
	slog.Debug("run interrupted", "run", a.RunID)
	return res, fmt.Errorf("run %s interrupted: %w", a.RunID, context.Cause(ctx))
}

// signaler is implemented by cancellation causes that carry an OS signal.
type signaler interface {
	OSSignal() os.Signal
}

func signalLine(ctx context.Context) string {
	cause := context.Cause(ctx)
	var sig signaler
	if errors.As(cause, &sig) {
		return fmt.Sprintf("SIGNAL %v RECEIVED: TERMINATING SCRIPT", sig.OSSignal())
	}
	return fmt.Sprintf("CANCELLED (%v): TERMINATING SCRIPT", cause)
}

func writeLine(w io.Writer, line string) {
	_, _ = io.WriteString(w, line+"\n")
}
