package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/entitybridge/internal/entitystate"
	"github.com/roach88/entitybridge/internal/ir"
)

// StateResult is the output of the state command.
type StateResult struct {
	State entitystate.State `json:"state"`
	Sys   ir.EntitySys      `json:"sys"`
}

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state <sys.json|->",
		Short: "Compute the lifecycle state of an entity",
		Long: `Compute the lifecycle state from entity metadata.

The input is either a sys object or a full entity with a "sys" key.
Use - to read from stdin.

Example:
  echo '{"type":"Entry","version":5,"publishedVersion":3}' | entitybridge state -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runState(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runState(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	data, err := readInput(cmd, path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, fmt.Errorf("read input: %w", err))
	}
	sys, err := decodeSys(data)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, err)
	}
	state, err := entitystate.Compute(sys)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeInput, err)
	}

	return formatter.Success(StateResult{State: state, Sys: sys}, state.String())
}
