package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/sweeps/internal/ledger"
)

// StatusResult is the JSON payload of the status command.
type StatusResult struct {
	ScriptID string         `json:"script_id"`
	Counts   map[string]int `json:"counts"`
	Runs     ledger.Table   `json:"runs"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "status <script> [sweep-file]",
		Short: "Summarize run states for a script",
		Long: `Fold the ledger of every run folder for bin/<script> and count runs per
state. With a sweep file only that sweep's runs are counted.

Ledger entries written by other versions of the script are ignored.

Example:
  sweeps status train.py
  sweeps status train.py sweep.json --list`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject(rootOpts)
			if err != nil {
				return err
			}
			scriptID, err := p.ScriptID(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to identify script", err)
			}

			var only []string
			if len(args) == 2 {
				only, err = p.SweepIDs(args[1])
				if err != nil {
					return sweepError("failed to read sweep", err)
				}
			}

			table, err := p.Status(scriptID, only)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to collect status", err)
			}
			if n := table.Count(ledger.StateInvalid); n > 0 {
				slog.Warn("found runs with status INVALID", "count", n)
			}

			result := StatusResult{ScriptID: scriptID, Counts: map[string]int{}, Runs: table}
			for _, s := range ledger.AllStates {
				result.Counts[s.String()] = table.Count(s)
			}
			return formatter(rootOpts, cmd).Success(result, func(w io.Writer) {
				writeSummary(w, scriptID, table, list)
			})
		},
	}

	cmd.Flags().BoolVarP(&list, "list", "l", false, "list run ids under each state")
	return cmd
}

// writeSummary prints the sweep summary: one right-aligned line per state,
// "----" for empty states.
func writeSummary(w io.Writer, scriptID string, table ledger.Table, list bool) {
	fmt.Fprintln(w, "SWEEP SUMMARY: "+scriptID)
	for _, s := range ledger.AllStates {
		count := "----"
		if n := table.Count(s); n > 0 {
			count = strconv.Itoa(n)
		}
		fmt.Fprintf(w, "%13s: %4s\n", s, count)
		if list {
			for _, id := range table[s] {
				fmt.Fprintf(w, "%15s%s\n", "", id)
			}
		}
	}
}
