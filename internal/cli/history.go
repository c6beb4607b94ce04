package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/sweeps/internal/catalog"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit      int
	Invocation string // optional - list attempts of one invocation
	Run        string // optional - list attempts of one run
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past sweep invocations",
		Long: `List scheduler invocations recorded in history/catalog.db, oldest first.

The catalog is bookkeeping only; run states always come from the ledgers.

Examples:
  sweeps history --limit 5
  sweeps history --invocation 01920000-0000-7000-8000-000000000000
  sweeps history --run 59f34f64ff1615a2`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "show at most this many invocations (0 for all)")
	cmd.Flags().StringVar(&opts.Invocation, "invocation", "", "list the attempts of one invocation")
	cmd.Flags().StringVar(&opts.Run, "run", "", "list the attempts of one run")
	cmd.MarkFlagsMutuallyExclusive("invocation", "run")
	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	p, err := openProject(opts.RootOptions)
	if err != nil {
		return err
	}
	path := filepath.Join(p.HistoryPath(), catalog.FileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return NewExitError(ExitCommandError, "no history catalog; run a sweep first")
	}

	cat, err := catalog.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open history catalog", err)
	}
	defer cat.Close()

	out := formatter(opts.RootOptions, cmd)
	switch {
	case opts.Invocation != "":
		attempts, err := cat.Attempts(ctx, opts.Invocation)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read attempts", err)
		}
		return out.Success(attempts, func(w io.Writer) { writeAttempts(w, attempts) })
	case opts.Run != "":
		attempts, err := cat.RunAttempts(ctx, opts.Run)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read attempts", err)
		}
		return out.Success(attempts, func(w io.Writer) { writeAttempts(w, attempts) })
	}

	invocations, err := cat.Invocations(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read invocations", err)
	}
	return out.Success(invocations, func(w io.Writer) { writeInvocations(w, invocations) })
}

func writeInvocations(w io.Writer, invocations []catalog.Invocation) {
	if len(invocations) == 0 {
		fmt.Fprintln(w, "No invocations recorded.")
		return
	}
	for _, inv := range invocations {
		status := "completed"
		switch {
		case inv.FinishedAt == "":
			status = "unfinished"
		case inv.Signal != "":
			status = "interrupted (" + inv.Signal + ")"
		}
		sweep := inv.SweepFile
		if sweep == "" {
			sweep = "All"
		}
		fmt.Fprintf(w, "%s  %s  %-36s  %s  rfs=%s  queued=%d  %s\n",
			inv.StartedAt, inv.ID, inv.ScriptID, inv.Script, sweep, inv.Queued, status)
	}
}

func writeAttempts(w io.Writer, attempts []catalog.Attempt) {
	if len(attempts) == 0 {
		fmt.Fprintln(w, "No attempts recorded.")
		return
	}
	for _, a := range attempts {
		fmt.Fprintf(w, "%s  %s  %-11s  exit=%d\n", a.InvocationID, a.RunID, a.Outcome, a.ExitCode)
	}
}
