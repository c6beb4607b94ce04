package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/sweeps/internal/ledger"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Script string // optional - filter to one script identity
}

// ReplayStep is one ledger line in the replay output.
type ReplayStep struct {
	Line    int    `json:"line"`
	Raw     string `json:"raw"`
	Skipped bool   `json:"skipped"`
	Before  string `json:"before"`
	After   string `json:"after"`
	Error   string `json:"error,omitempty"`
}

// ReplayResult holds the replay of one run's ledger.
type ReplayResult struct {
	RunID         string       `json:"run_id"`
	ScriptID      string       `json:"script_id,omitempty"`
	Steps         []ReplayStep `json:"steps"`
	State         string       `json:"state"`
	Deterministic bool         `json:"deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <run-id>",
		Short: "Replay a run's ledger and verify determinism",
		Long: `Replay the status ledger of one run folder line by line, showing the state
after each line, and verify that folding the ledger twice gives the same state.

With --script only entries of that script's current identity are applied;
other entries are shown as skipped.

Exit codes:
  0 - Replay is deterministic
  1 - Determinism verification failed
  2 - Command error (unknown run, unreadable ledger, etc.)

Examples:
  sweeps replay 59f34f64ff1615a2
  sweeps replay 59f34f64ff1615a2 --script train.py --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Script, "script", "", "replay entries of this script only")
	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command, id string) error {
	p, err := openProject(opts.RootOptions)
	if err != nil {
		return err
	}
	if info, err := os.Stat(p.RunPath(id)); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("no run folder %s", id))
	}

	var scriptID string
	if opts.Script != "" {
		scriptID, err = p.ScriptID(opts.Script)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to identify script", err)
		}
	}

	entries, err := ledger.ReadFile(p.LedgerPath(id))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read ledger", err)
	}

	// Replay twice; a pure fold must agree with itself and with its trace.
	first := ledger.Fold(entries, scriptID)
	second := ledger.Fold(entries, scriptID)
	trace := ledger.Trace(entries, scriptID)

	final := ledger.StateNew
	if len(trace) > 0 {
		final = trace[len(trace)-1].After
	}

	result := ReplayResult{
		RunID:         id,
		ScriptID:      scriptID,
		Steps:         make([]ReplayStep, 0, len(trace)),
		State:         first.String(),
		Deterministic: first == second && first == final,
	}
	for _, s := range trace {
		step := ReplayStep{
			Line:    s.Line,
			Raw:     s.Entry.Raw,
			Skipped: s.Skipped,
			Before:  s.Before.String(),
			After:   s.After.String(),
		}
		if s.Err != nil {
			step.Error = s.Err.Error()
		}
		result.Steps = append(result.Steps, step)
	}

	if err := formatter(opts.RootOptions, cmd).Success(result, func(w io.Writer) {
		writeReplay(w, result, opts.Verbose)
	}); err != nil {
		return err
	}

	if !result.Deterministic {
		return NewExitError(ExitFailure, "replay is not deterministic")
	}
	return nil
}

func writeReplay(w io.Writer, r ReplayResult, verbose bool) {
	fmt.Fprintf(w, "Run %s\n", r.RunID)
	for _, s := range r.Steps {
		switch {
		case s.Skipped && !verbose:
			continue
		case s.Skipped:
			fmt.Fprintf(w, "%4d  %-60s  skipped\n", s.Line, s.Raw)
		case s.Error != "":
			fmt.Fprintf(w, "%4d  %-60s  %s -> %s  (%s)\n", s.Line, s.Raw, s.Before, s.After, s.Error)
		default:
			fmt.Fprintf(w, "%4d  %-60s  %s -> %s\n", s.Line, s.Raw, s.Before, s.After)
		}
	}
	fmt.Fprintf(w, "State: %s\n", r.State)
	if r.Deterministic {
		fmt.Fprintln(w, "Deterministic: yes")
	} else {
		fmt.Fprintln(w, "Deterministic: NO")
	}
}
