package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/entitybridge/internal/entitystate"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Database string
}

// ImportedEntity is one row of the import command's output.
type ImportedEntity struct {
	ID      string            `json:"id"`
	Version int64             `json:"version"`
	State   entitystate.State `json:"state"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <entities.json|->...",
		Short: "Load entities into the local backend",
		Long: `Load entity JSON into the SQLite backend, replacing existing rows with
the same id. Each file holds one entity object or an array of them.

Imports are not lifecycle calls: versions are taken as given and nothing
is written to the transition log.

Example:
  entitybridge import --db ./space.db ./entries.json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runImport(opts *ImportOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	var imported []ImportedEntity
	for _, path := range paths {
		data, err := readInput(cmd, path)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInput, fmt.Errorf("read %s: %w", path, err))
		}
		entities, err := decodeEntities(data)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInput, fmt.Errorf("%s: %w", path, err))
		}
		for _, e := range entities {
			if err := st.Import(commandContext(cmd), e); err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeStore, err)
			}
			state, _ := entitystate.Compute(e.Sys)
			formatter.VerboseLog("imported %s v%d (%s)", e.Sys.ID, e.Sys.Version, state)
			imported = append(imported, ImportedEntity{ID: e.Sys.ID, Version: e.Sys.Version, State: state})
		}
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Imported %d entities", len(imported))
	for _, e := range imported {
		fmt.Fprintf(&text, "\n  %s v%d %s", e.ID, e.Version, e.State)
	}
	return formatter.Success(imported, text.String())
}
