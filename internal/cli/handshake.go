package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/entitybridge/internal/channel"
	"github.com/roach88/entitybridge/internal/contenttype"
	"github.com/roach88/entitybridge/internal/extension"
	"github.com/roach88/entitybridge/internal/ir"
	"github.com/roach88/entitybridge/internal/store"
)

// HandshakeOptions holds flags for the handshake command.
type HandshakeOptions struct {
	*RootOptions
	Config   string
	Database string
	Schema   string
}

// NewHandshakeCommand creates the handshake command.
func NewHandshakeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HandshakeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "handshake",
		Short: "Print the handshake an extension would receive",
		Long: `Build the connect payload for an extension config without starting a
peer. Field and locale ids are shown as the extension sees them.

With --db the stored entity replaces the entry in the config.

Example:
  entitybridge handshake --config ./extension.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHandshake(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "extension config YAML (required)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database holding the entry")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "CUE schema supplying the content type and locales")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runHandshake(opts *HandshakeOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, _, err := loadHostConfig(opts.Config, opts.Schema)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	if opts.Database != "" {
		st, err := openStore(opts.Database)
		if err != nil {
			return err
		}
		defer st.Close()
		entry, err := st.Get(commandContext(cmd), cfg.Entry.Sys.ID)
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeStore, err)
		}
		cfg.Entry = entry
	}

	// The adapter needs a channel to validate; nothing is ever posted on it.
	host, _, closeFrame := channel.NewMemoryBus().Frame()
	defer closeFrame()
	ch := channel.New(host, channel.UUIDv7Generator{})
	defer ch.Destroy()
	cfg.Channel = ch

	adapter, err := extension.New(*cfg)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	hs := adapter.Handshake(cfg.Entry)

	text := fmt.Sprintf("%s %s (%s) in %s, %d fields", hs.Entry.Sys.Type, hs.Entry.Sys.ID, hs.ContentType.Name, hs.Location, len(hs.FieldInfo))
	return formatter.Success(hs, text)
}

// loadHostConfig reads an extension config. When schemaDir is set the
// schema fills in the content type and locales the config leaves out.
func loadHostConfig(path, schemaDir string) (*extension.Config, *contenttype.Schema, error) {
	if path == "" {
		return nil, nil, errors.New("--config is required")
	}
	cfg, err := extension.LoadConfigFile(path)
	if err != nil {
		return nil, nil, err
	}
	if schemaDir == "" {
		return cfg, nil, nil
	}

	schema, err := loadSchema(schemaDir)
	if err != nil {
		return nil, nil, err
	}
	if cfg.ContentType.ID == "" {
		ct, ok := schema.ContentType(cfg.Entry.Sys.ContentTypeID)
		if !ok {
			return nil, nil, fmt.Errorf("content type %q is not in the schema", cfg.Entry.Sys.ContentTypeID)
		}
		cfg.ContentType = ct
	}
	if len(cfg.Locales.Available) == 0 {
		cfg.Locales = schema.Locales
	}
	return cfg, schema, nil
}

// ensureEntry returns the stored entity for entry, importing entry first
// when the store does not have it yet.
func ensureEntry(cmd *cobra.Command, st *store.Store, entry ir.Entity) (ir.Entity, error) {
	ctx := commandContext(cmd)
	stored, err := st.Get(ctx, entry.Sys.ID)
	if err == nil {
		return stored, nil
	}
	if !store.IsNotFound(err) {
		return ir.Entity{}, err
	}
	if err := st.Import(ctx, entry); err != nil {
		return ir.Entity{}, err
	}
	return st.Get(ctx, entry.Sys.ID)
}
