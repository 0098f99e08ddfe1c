package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/entitybridge/internal/ir"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEntry builds an entry with minimal required fields.
func createTestEntry(id string, version int64) ir.Entity {
	return ir.Entity{
		Sys: ir.EntitySys{ID: id, Type: ir.EntityTypeEntry, Version: version, ContentTypeID: "post"},
		Fields: map[string]map[string]any{
			"title": {"en-US": "Hello"},
		},
	}
}

// importTestEntry imports e into s or fails the test.
func importTestEntry(t *testing.T, s *Store, e ir.Entity) {
	t.Helper()
	if err := s.Import(context.Background(), e); err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
}
