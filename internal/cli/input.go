package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/entitybridge/internal/contenttype"
	"github.com/roach88/entitybridge/internal/ir"
	"github.com/roach88/entitybridge/internal/store"
)

// readInput reads path, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// decodeEntities accepts a single entity object or an array of them.
// Numbers decode as float64 like every other JSON value that reaches the
// document.
func decodeEntities(data []byte) ([]ir.Entity, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty input")
	}
	if data[0] == '[' {
		var entities []ir.Entity
		if err := json.Unmarshal(data, &entities); err != nil {
			return nil, fmt.Errorf("decode entities: %w", err)
		}
		return entities, nil
	}
	var e ir.Entity
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}
	return []ir.Entity{e}, nil
}

// decodeSys accepts either bare sys metadata or an entity wrapping it.
func decodeSys(data []byte) (ir.EntitySys, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return ir.EntitySys{}, fmt.Errorf("decode sys: %w", err)
	}
	if raw, ok := top["sys"]; ok {
		data = raw
	}
	var sys ir.EntitySys
	if err := json.Unmarshal(data, &sys); err != nil {
		return ir.EntitySys{}, fmt.Errorf("decode sys: %w", err)
	}
	return sys, nil
}

// openStore opens the database named by --db.
func openStore(path string) (*store.Store, error) {
	if path == "" {
		return nil, NewExitError(ExitCommandError, "--db is required")
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// loadSchema compiles a schema directory, failing on any error.
func loadSchema(dir string) (*contenttype.Schema, error) {
	schema, errs := contenttype.Load(dir)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return schema, nil
}

// splitErrors flattens an errors.Join tree one level deep.
func splitErrors(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
