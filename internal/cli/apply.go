package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/entitybridge/internal/entitystate"
	"github.com/roach88/entitybridge/internal/ir"
	"github.com/roach88/entitybridge/internal/store"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Database string
	Schema   string // optional; gates publish on validation
}

// ApplyResult is the output of the apply command.
type ApplyResult struct {
	Action   entitystate.Action `json:"action"`
	From     entitystate.State  `json:"from"`
	To       entitystate.State  `json:"to"`
	Requests []string           `json:"requests"`
	Sys      *ir.EntitySys      `json:"sys,omitempty"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <entity-id> <action>",
		Short: "Run a lifecycle action against the local backend",
		Long: `Move a stored entity to the state an action targets, issuing the
backend calls the planner chooses. Actions: publish, unpublish, archive,
unarchive, delete.

With --schema, publishing is refused for entities that fail validation.

Examples:
  entitybridge apply --db ./space.db entry-1 publish
  entitybridge apply --db ./space.db --schema ./schema entry-1 archive --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "CUE schema directory used to validate publishes")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runApply(opts *ApplyOptions, id, actionName string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	action, err := entitystate.ParseAction(actionName)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, err)
	}

	var backendOpts []store.BackendOption
	if opts.Schema != "" {
		schema, err := loadSchema(opts.Schema)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeSchema, err)
		}
		backendOpts = append(backendOpts, store.WithValidator(schema.Validate))
	}

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := commandContext(cmd)
	entity, err := st.Get(ctx, id)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeStore, err)
	}
	from, err := entitystate.Compute(entity.Sys)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeStore, err)
	}

	backend := store.NewBackend(st, backendOpts...)
	var requests []string
	client := entitystate.ClientFunc(func(ctx context.Context, req entitystate.Request) (*ir.EntitySys, error) {
		requests = append(requests, req.String())
		formatter.VerboseLog("-> %s (version %d)", req, req.Version)
		return backend.Do(ctx, req)
	})

	sys, err := entitystate.NewPlanner(client).Apply(ctx, action, from, entity)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeRejected, err)
	}

	result := ApplyResult{Action: action, From: from, To: entitystate.StateDeleted, Requests: requests, Sys: sys}
	if sys != nil {
		result.To = entitystate.MustCompute(*sys)
	}
	if result.Requests == nil {
		result.Requests = []string{}
	}

	var text strings.Builder
	fmt.Fprintf(&text, "%s: %s -> %s", id, result.From, result.To)
	for _, r := range result.Requests {
		fmt.Fprintf(&text, "\n  %s", r)
	}
	return formatter.Success(result, text.String())
}
