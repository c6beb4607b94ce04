package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/sweeps/internal/sweep"
)

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the project layout",
		Long: `Create rfs/, history/ and data/ under the project root.

The project must already contain a bin/ directory holding the scripts to run.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject(rootOpts)
			if err != nil {
				return err
			}
			if err := p.Init(); err != nil {
				return WrapExitError(ExitCommandError, "failed to initialize project", err)
			}
			return formatter(rootOpts, cmd).Success(map[string]string{"root": p.Root}, func(w io.Writer) {
				fmt.Fprintf(w, "Initialized sweep project in %s\n", p.Root)
			})
		},
	}
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create <sweep-file>",
		Short: "Create run folders for every run of a sweep",
		Long: `Expand a sweep definition (.json, .yaml, .yml or .cue) and create one run
folder per parameter combination under rfs/.

Run folders that already exist are left untouched, so creating the same sweep
twice is a no-op. The sweep file is copied into history/.

Example:
  sweeps create sweep.json
  sweeps -C ./project create grid.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject(rootOpts)
			if err != nil {
				return err
			}
			result, err := p.Create(args[0])
			if err != nil {
				return sweepError("failed to create run folders", err)
			}
			return formatter(rootOpts, cmd).Success(result, func(w io.Writer) {
				fmt.Fprintf(w, "Created %d run folders (%d already existed)\n", len(result.Created), len(result.Existing))
			})
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <sweep-file>",
		Short: "Delete the run folders of a sweep",
		Long: `Remove the run folder, results included, of every run of a sweep.

The sweep file is copied into history/ before anything is removed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject(rootOpts)
			if err != nil {
				return err
			}
			result, err := p.Delete(args[0])
			if err != nil {
				return sweepError("failed to delete run folders", err)
			}
			return formatter(rootOpts, cmd).Success(result, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted %d run folders (%d missing)\n", len(result.Deleted), len(result.Missing))
			})
		},
	}
}

// sweepError maps errors from loading a sweep to a command error, naming the
// offending parameter for definition errors.
func sweepError(message string, err error) error {
	if sweep.IsDefinitionError(err) {
		return WrapExitError(ExitCommandError, "invalid sweep definition", err)
	}
	return WrapExitError(ExitCommandError, message, err)
}
