package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/sweeps/internal/aggregate"
)

// NewCloseCommand creates the close command.
func NewCloseCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "close <sweep-file>",
		Short: "Collect a sweep's params and results into data/",
		Long: `Aggregate a sweep into data/<sweep-fingerprint>/: a params.json table of
every existing run, a results.ndjson file of every decodable result artifact,
and a copy of the sweep file.

Result artifacts are decoded by extension: .json, .ndjson, .json.gz, .json.sz.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject(rootOpts)
			if err != nil {
				return err
			}
			result, err := aggregate.Close(p, args[0], aggregate.DefaultRegistry())
			if err != nil {
				return sweepError("failed to close sweep", err)
			}
			return formatter(rootOpts, cmd).Success(result, func(w io.Writer) {
				fmt.Fprintf(w, "Closed sweep %s into %s\n", result.Fingerprint, result.Dir)
				fmt.Fprintf(w, "%d runs, %d missing, %d results, %d artifacts skipped\n",
					len(result.Runs), len(result.Missing), result.Results, len(result.Skipped))
			})
		},
	}
}
