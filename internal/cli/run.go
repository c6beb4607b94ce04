package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/sweeps/internal/catalog"
	"github.com/roach88/sweeps/internal/scheduler"
	"github.com/roach88/sweeps/internal/supervisor"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	RerunFailed bool
	Procs       int
	Executable  string
	Only        []string
	Catalog     bool

	// IDGenerator allows overriding invocation ids (for testing).
	// If nil, defaults to scheduler.UUIDv7Generator.
	IDGenerator scheduler.IDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <script> [sweep-file]",
		Short: "Run a script over every runnable run folder",
		Long: `Run bin/<script> once for every run folder whose state is NEW (and FAILED
with --rerun-failed), on a pool of --procs workers.

The program is invoked as "<executable> bin/<script> rfs/<id>". With a sweep
file only that sweep's runs are considered. Runs that are already QUEUED or
RUNNING are reported and skipped.

Interrupt, terminate and quit stop the sweep: running scripts are killed,
runs that never started are marked KILLED and become NEW again.

Exit codes:
  0 - Every attempted run finished
  1 - At least one run failed or could not start
  2 - Command error (missing script, invalid sweep file, etc.)
  128+n - Interrupted by signal n

Example:
  sweeps run train.py sweep.json --procs 8
  sweeps run train.py --rerun-failed`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var sweepFile string
			if len(args) == 2 {
				sweepFile = args[1]
			}
			return runSweep(opts, cmd, args[0], sweepFile)
		},
	}

	cmd.Flags().BoolVar(&opts.RerunFailed, "rerun-failed", false, "also run FAILED runs")
	cmd.Flags().IntVarP(&opts.Procs, "procs", "j", 0, "number of concurrent runs (default from config)")
	cmd.Flags().StringVar(&opts.Executable, "executable", "", "program that runs the script (default from config)")
	cmd.Flags().StringSliceVar(&opts.Only, "only", nil, "restrict to these run ids")
	cmd.Flags().BoolVar(&opts.Catalog, "catalog", true, "record the invocation in history/catalog.db")

	return cmd
}

func runSweep(opts *RunOptions, cmd *cobra.Command, script, sweepFile string) error {
	p, err := openProject(opts.RootOptions)
	if err != nil {
		return err
	}

	cfg := opts.Config
	if cmd.Flags().Changed("procs") {
		if opts.Procs < 1 {
			return NewExitError(ExitCommandError, fmt.Sprintf("--procs must be at least 1, got %d", opts.Procs))
		}
		cfg.Procs = opts.Procs
	}
	if cmd.Flags().Changed("executable") {
		cfg.Executable = opts.Executable
	}
	if cmd.Flags().Changed("catalog") {
		cfg.Catalog = opts.Catalog
	}

	if err := p.Init(); err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize project", err)
	}

	schedOpts := []scheduler.Option{scheduler.WithProcs(cfg.Procs)}
	if opts.IDGenerator != nil {
		schedOpts = append(schedOpts, scheduler.WithIDGenerator(opts.IDGenerator))
	}
	if cfg.Catalog {
		cat, err := catalog.Open(filepath.Join(p.HistoryPath(), catalog.FileName))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open history catalog", err)
		}
		defer func() {
			if closeErr := cat.Close(); closeErr != nil {
				slog.Error("error closing history catalog", "error", closeErr)
			}
		}()
		schedOpts = append(schedOpts, scheduler.WithRecorder(cat))
	}

	sched := scheduler.New(p, supervisor.New(cfg.Executable), schedOpts...)

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parentCtx)
	defer cancel(nil)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Warn("received signal, terminating runs", "signal", sig)
			cancel(&scheduler.InterruptError{Signal: sig})
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	if opts.Format != "json" {
		fmt.Fprintln(cmd.ErrOrStderr(), "Sweep started. Press Ctrl-C to interrupt.")
	}

	report, err := sched.Run(ctx, scheduler.Request{
		Script:      script,
		SweepFile:   sweepFile,
		RerunFailed: opts.RerunFailed,
		Only:        opts.Only,
	})
	if report == nil {
		return sweepError("failed to start sweep", err)
	}

	out := formatter(opts.RootOptions, cmd)
	if outErr := out.Success(report, func(w io.Writer) { writeRunReport(w, report) }); outErr != nil {
		return outErr
	}

	var ie *scheduler.InterruptError
	switch {
	case errors.As(err, &ie):
		return WrapExitError(ie.ExitCode(), "sweep interrupted", err)
	case err != nil && report.Interrupted:
		return WrapExitError(ExitFailure, "sweep cancelled", err)
	case err != nil:
		return WrapExitError(ExitCommandError, "sweep aborted", err)
	case report.AnyFailed():
		return NewExitError(ExitFailure, fmt.Sprintf("%d runs failed", len(report.Failed)+len(report.Errored)))
	}
	return nil
}

func writeRunReport(w io.Writer, r *scheduler.Report) {
	if r.Interrupted {
		fmt.Fprintln(w, "Sweep interrupted: runs terminated.")
	} else {
		fmt.Fprintln(w, "Sweep completed.")
	}
	fmt.Fprintf(w, "%-12s %s\n", "invocation:", r.InvocationID)
	fmt.Fprintf(w, "%-12s %s\n", "script:", r.ScriptID)
	fmt.Fprintf(w, "%-12s %s\n", "manifest:", r.Manifest)
	rows := []struct {
		name string
		ids  []string
	}{
		{"queued", r.Queued},
		{"finished", r.Finished},
		{"failed", r.Failed},
		{"errored", r.Errored},
		{"killed", r.Killed},
		{"stranded", r.Stranded},
		{"invalid", r.Invalid},
		{"in flight", r.InFlight},
	}
	for _, row := range rows {
		if len(row.ids) == 0 {
			continue
		}
		fmt.Fprintf(w, "%-12s %d\n", row.name+":", len(row.ids))
	}
}
