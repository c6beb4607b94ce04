package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/sweeps/internal/catalog"
	"github.com/roach88/sweeps/internal/ledger"
	"github.com/roach88/sweeps/internal/project"
	"github.com/roach88/sweeps/internal/supervisor"
)

// Runner executes one attempt. *supervisor.Supervisor implements it.
type Runner interface {
	Run(ctx context.Context, a supervisor.Attempt) (supervisor.Result, error)
}

// Recorder receives invocation and attempt records. *catalog.Catalog
// implements it. Recording failures are logged, never fatal.
type Recorder interface {
	RecordInvocation(ctx context.Context, inv catalog.Invocation) error
	RecordAttempt(ctx context.Context, a catalog.Attempt) error
	FinishInvocation(ctx context.Context, id string, s catalog.Summary) error
}

// Request selects what one invocation runs.
type Request struct {
	// Script is the file name under bin/.
	Script string

	// SweepFile, when set, restricts the invocation to the runs of that
	// sweep. It is moved into history/ once the invocation completes.
	SweepFile string

	// RerunFailed adds FAILED runs to the runnable set.
	RerunFailed bool

	// Only, when non-nil, further restricts the invocation to these ids.
	Only []string
}

// Report is the result of one invocation. Id lists are sorted.
type Report struct {
	InvocationID string   `json:"invocation_id"`
	ScriptID     string   `json:"script_id"`
	Manifest     string   `json:"manifest"`
	Queued       []string `json:"queued"`
	Invalid      []string `json:"invalid"`
	InFlight     []string `json:"in_flight"`
	Finished     []string `json:"finished"`
	Failed       []string `json:"failed"`

	// Errored runs could not be started; they were returned to NEW.
	Errored []string `json:"errored"`

	// Killed runs were queued but never started; they are NEW again.
	Killed []string `json:"killed"`

	// Stranded runs were started and then abandoned by an interrupt. They
	// stay RUNNING until killed or requeued by hand.
	Stranded []string `json:"stranded"`

	Interrupted bool `json:"interrupted"`
}

// AnyFailed reports whether at least one attempt failed or could not start.
func (r *Report) AnyFailed() bool {
	return len(r.Failed) > 0 || len(r.Errored) > 0
}

// Scheduler dispatches runnable runs of a project to a bounded pool of
// supervisor attempts.
type Scheduler struct {
	project  *project.Project
	runner   Runner
	procs    int
	ids      IDGenerator
	recorder Recorder
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithProcs sets the number of concurrent attempts. Values below 1 are
// ignored.
func WithProcs(n int) Option {
	return func(s *Scheduler) {
		if n >= 1 {
			s.procs = n
		}
	}
}

// WithIDGenerator overrides invocation id generation.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Scheduler) {
		s.ids = g
	}
}

// WithRecorder records invocations and attempts, usually into the catalog.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		s.recorder = r
	}
}

// New creates a Scheduler for p. The pool size defaults to runtime.NumCPU().
func New(p *project.Project, runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		project: p,
		runner:  runner,
		procs:   runtime.NumCPU(),
		ids:     UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs one invocation:
//
//  1. fold every candidate run's ledger for the script identity
//  2. write <ts>.run listing queued, INVALID and in-flight runs
//  3. append QUEUED to every runnable ledger
//  4. run attempts on at most procs workers until drained or ctx is done
//  5. append KILLED to every run still QUEUED
//  6. move the manifest (and, on completion, the sweep file) into history/
//
// Runs already QUEUED or RUNNING are reported and never dispatched, so two
// attempts never hold the same run folder.
//
// When ctx is cancelled no further attempts start, in-flight attempts are
// killed, and Run returns the report together with context.Cause(ctx),
// typically an *InterruptError.
func (s *Scheduler) Run(ctx context.Context, req Request) (*Report, error) {
	p := s.project
	if err := p.Init(); err != nil {
		return nil, err
	}

	ts := p.Timestamp()
	scriptID, err := p.ScriptID(req.Script)
	if err != nil {
		return nil, err
	}

	only, fingerprint, err := s.candidates(req)
	if err != nil {
		return nil, err
	}
	table, err := p.Status(scriptID, only)
	if err != nil {
		return nil, err
	}

	queued := slices.Clone(table[ledger.StateNew])
	if req.RerunFailed {
		queued = append(queued, table[ledger.StateFailed]...)
	}
	slices.Sort(queued)
	inFlight := append(slices.Clone(table[ledger.StateQueued]), table[ledger.StateRunning]...)
	slices.Sort(inFlight)

	report := &Report{
		InvocationID: s.ids.Generate(),
		ScriptID:     scriptID,
		Queued:       queued,
		Invalid:      table[ledger.StateInvalid],
		InFlight:     inFlight,
		Finished:     []string{},
		Failed:       []string{},
		Errored:      []string{},
		Killed:       []string{},
		Stranded:     []string{},
	}

	manifest := &Manifest{
		Timestamp:    ts,
		InvocationID: report.InvocationID,
		ScriptID:     scriptID,
		RerunFailed:  req.RerunFailed,
		SweepFile:    req.SweepFile,
		Procs:        s.procs,
		Queued:       report.Queued,
		Invalid:      report.Invalid,
		InFlight:     report.InFlight,
	}
	manifestPath := p.Path(manifest.FileName())
	if err := writeManifest(manifestPath, manifest); err != nil {
		return nil, err
	}

	if len(report.Invalid) > 0 {
		slog.Warn("found runs with status INVALID (ignored)", "count", len(report.Invalid))
	}
	if len(report.InFlight) > 0 {
		slog.Warn("found runs with status QUEUED or RUNNING (ignored)", "count", len(report.InFlight))
	}

	s.record(ctx, func(ctx context.Context, r Recorder) error {
		return r.RecordInvocation(ctx, catalog.Invocation{
			ID:               report.InvocationID,
			Script:           req.Script,
			ScriptID:         scriptID,
			SweepFile:        req.SweepFile,
			SweepFingerprint: fingerprint,
			Procs:            s.procs,
			StartedAt:        ts,
		})
	})

	committed, err := s.commit(report.Queued, scriptID)
	if err != nil {
		// Roll back the intent that did make it to disk.
		s.sweepUp(committed, scriptID, report)
		return report, err
	}

	slog.Info("sweep started", "invocation", report.InvocationID, "queued", len(report.Queued), "procs", s.procs)
	s.dispatch(ctx, req.Script, scriptID, report)
	s.sweepUp(report.Queued, scriptID, report)

	cause := context.Cause(ctx)
	report.Interrupted = cause != nil

	archived, err := s.archive(ts, manifestPath, req, report.Interrupted)
	if err != nil {
		return report, err
	}
	report.Manifest = archived

	summary := catalog.Summary{
		FinishedAt: p.Timestamp(),
		Manifest:   archived,
		Queued:     len(report.Queued),
		Invalid:    len(report.Invalid),
		InFlight:   len(report.InFlight),
	}
	var ie *InterruptError
	if errors.As(cause, &ie) {
		summary.Signal = ie.Signal.String()
	}
	s.record(ctx, func(ctx context.Context, r Recorder) error {
		return r.FinishInvocation(ctx, report.InvocationID, summary)
	})

	if report.Interrupted {
		slog.Warn("sweep interrupted", "invocation", report.InvocationID,
			"killed", len(report.Killed), "stranded", len(report.Stranded))
		return report, cause
	}
	slog.Info("sweep completed", "invocation", report.InvocationID,
		"finished", len(report.Finished), "failed", len(report.Failed))
	return report, nil
}

// candidates returns the id restriction for req (nil means every run folder)
// and the sweep fingerprint when a sweep file is given.
func (s *Scheduler) candidates(req Request) ([]string, string, error) {
	only := req.Only
	if req.SweepFile == "" {
		return only, "", nil
	}

	spec, exp, err := s.project.LoadSweep(req.SweepFile)
	if err != nil {
		return nil, "", err
	}
	fingerprint, err := spec.Fingerprint()
	if err != nil {
		return nil, "", err
	}
	ids, err := exp.IDs()
	if err != nil {
		return nil, "", err
	}
	if only != nil {
		ids = slices.DeleteFunc(ids, func(id string) bool { return !slices.Contains(only, id) })
	}
	return ids, fingerprint, nil
}

// commit appends QUEUED to every runnable ledger before anything is spawned.
// It returns the ids whose ledgers were written.
func (s *Scheduler) commit(ids []string, scriptID string) ([]string, error) {
	done := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := ledger.AppendFile(s.project.LedgerPath(id), ledger.ActionQueued, scriptID, s.project.Now); err != nil {
			return done, fmt.Errorf("queue run %s: %w", id, err)
		}
		done = append(done, id)
	}
	return done, nil
}

// dispatch runs every queued id on the pool. It returns once every started
// attempt has returned.
func (s *Scheduler) dispatch(ctx context.Context, script, scriptID string, report *Report) {
	var (
		mu  sync.Mutex
		seq atomic.Int64
		g   errgroup.Group
	)
	g.SetLimit(s.procs)

	for _, id := range report.Queued {
		// Go blocks while every slot is busy; re-check before each dispatch.
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			attempt := supervisor.NewAttempt(s.project, id, script, scriptID)
			res, err := s.runner.Run(ctx, attempt)

			mu.Lock()
			switch {
			case res.Outcome == supervisor.OutcomeInterrupted:
			case err != nil && res.Outcome != supervisor.OutcomeFinished:
				report.Errored = append(report.Errored, id)
			case res.Outcome == supervisor.OutcomeFinished:
				report.Finished = append(report.Finished, id)
			default:
				report.Failed = append(report.Failed, id)
			}
			mu.Unlock()

			switch {
			case res.Outcome == supervisor.OutcomeInterrupted:
				slog.Debug("run interrupted", "run", id)
			case err != nil:
				slog.Error("run attempt failed", "run", id, "error", err)
			default:
				slog.Info("run done", "run", id, "outcome", res.Outcome.String(), "exit_code", res.ExitCode)
			}

			if res.Outcome != supervisor.OutcomeInterrupted {
				s.record(ctx, func(ctx context.Context, r Recorder) error {
					return r.RecordAttempt(ctx, catalog.Attempt{
						InvocationID: report.InvocationID,
						RunID:        id,
						Seq:          seq.Add(1),
						Outcome:      res.Outcome.String(),
						ExitCode:     res.ExitCode,
					})
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	slices.Sort(report.Finished)
	slices.Sort(report.Failed)
	slices.Sort(report.Errored)
}

// sweepUp appends KILLED to every id whose ledger still folds to QUEUED and
// reports ids left RUNNING as stranded.
func (s *Scheduler) sweepUp(ids []string, scriptID string, report *Report) {
	for _, id := range ids {
		path := s.project.LedgerPath(id)
		state, err := ledger.StateOf(path, scriptID)
		if err != nil {
			slog.Error("failed to read ledger", "run", id, "error", err)
			continue
		}
		switch state {
		case ledger.StateQueued:
			if err := ledger.AppendFile(path, ledger.ActionKilled, scriptID, s.project.Now); err != nil {
				slog.Error("failed to mark run killed", "run", id, "error", err)
				continue
			}
			report.Killed = append(report.Killed, id)
		case ledger.StateRunning:
			slog.Warn("run left RUNNING after interrupt", "run", id)
			report.Stranded = append(report.Stranded, id)
		}
	}
	slices.Sort(report.Killed)
	slices.Sort(report.Stranded)
}

// archive moves the manifest into history/ and snapshots the script. The
// sweep file follows only when the invocation completed, so an interrupted
// sweep can be resumed from the same file.
func (s *Scheduler) archive(ts, manifestPath string, req Request, interrupted bool) (string, error) {
	p := s.project
	archived, err := p.ArchiveMove(manifestPath, filepath.Base(manifestPath))
	if err != nil {
		return "", err
	}
	if _, err := p.ArchiveCopy(p.ScriptPath(req.Script), ts+".script"); err != nil {
		return archived, err
	}
	if req.SweepFile != "" && !interrupted {
		if _, err := p.ArchiveMove(p.Path(req.SweepFile), ts+"."+filepath.Base(req.SweepFile)); err != nil {
			return archived, err
		}
	}
	return archived, nil
}

// record calls fn on the recorder, if any, detached from ctx's cancellation
// so an interrupted invocation is still recorded.
func (s *Scheduler) record(ctx context.Context, fn func(context.Context, Recorder) error) {
	if s.recorder == nil {
		return
	}
	if err := fn(context.WithoutCancel(ctx), s.recorder); err != nil {
		slog.Warn("failed to update history catalog", "error", err)
	}
}

func writeManifest(path string, m *Manifest) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if _, err := m.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
