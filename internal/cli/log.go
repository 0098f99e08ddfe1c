package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/entitybridge/internal/entitystate"
	"github.com/roach88/entitybridge/internal/ir"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Database string
}

// LogEntry is one transition in the log command's output.
type LogEntry struct {
	ID      string             `json:"id"`
	Seq     int64              `json:"seq"`
	Action  entitystate.Action `json:"action"`
	From    entitystate.State  `json:"from"`
	To      entitystate.State  `json:"to"`
	Version int64              `json:"version"`
	Sys     ir.EntitySys       `json:"sys"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log <entity-id>",
		Short: "Show the transition log of an entity",
		Long: `List every lifecycle call the local backend accepted for an entity,
oldest first, with the state before and after and the resulting sys.

Example:
  entitybridge log --db ./space.db entry-1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runLog(opts *LogOptions, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	transitions, err := st.Transitions(commandContext(cmd), id)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err)
	}

	entries := make([]LogEntry, 0, len(transitions))
	var text strings.Builder
	fmt.Fprintf(&text, "%d transitions for %s", len(transitions), id)
	for _, tr := range transitions {
		entries = append(entries, LogEntry{
			ID:      tr.ID,
			Seq:     tr.Seq,
			Action:  tr.Action,
			From:    tr.FromState,
			To:      tr.ToState,
			Version: tr.Version,
			Sys:     tr.Sys,
		})
		fmt.Fprintf(&text, "\n  #%d %-9s %s -> %s (v%d)", tr.Seq, tr.Action, tr.FromState, tr.ToState, tr.Version)
	}
	return formatter.Success(entries, text.String())
}
