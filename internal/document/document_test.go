package document

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entitybridge/internal/ir"
)

func testEntity() ir.Entity {
	return ir.Entity{
		Sys: ir.EntitySys{ID: "e1", Type: ir.EntityTypeEntry, Version: 1},
		Fields: map[string]map[string]any{
			"f-title": {"loc-en": "Hello"},
		},
	}
}

func TestSetValueAt_NotifiesPathThenSys(t *testing.T) {
	d := New(testEntity())

	var events []string
	d.OnChange(func(p ir.Path) { events = append(events, "change:"+p.String()) })
	d.OnSys(func(s ir.EntitySys) { events = append(events, "sys") })

	require.NoError(t, d.SetValueAt(context.Background(), ir.FieldPath("f-title", "loc-de"), "Hallo"))

	v, ok := d.GetValueAt(ir.FieldPath("f-title", "loc-de"))
	assert.True(t, ok)
	assert.Equal(t, "Hallo", v)
	assert.Equal(t, int64(2), d.Sys().Version)
	assert.Equal(t, []string{"change:fields.f-title.loc-de", "sys"}, events)
}

func TestSetValueAt_CreatesField(t *testing.T) {
	d := New(ir.Entity{Sys: ir.EntitySys{ID: "e1", Type: ir.EntityTypeEntry, Version: 1}})
	require.NoError(t, d.SetValueAt(context.Background(), ir.FieldPath("f-body", "loc-en"), 42))

	v, ok := d.GetValueAt(ir.FieldPath("f-body", "loc-en"))
	assert.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestRemoveValueAt(t *testing.T) {
	d := New(testEntity())

	var changes []string
	d.OnChange(func(p ir.Path) { changes = append(changes, p.String()) })

	require.NoError(t, d.RemoveValueAt(context.Background(), ir.FieldPath("f-title", "loc-en")))
	_, ok := d.GetValueAt(ir.FieldPath("f-title", "loc-en"))
	assert.False(t, ok)
	_, ok = d.GetValueAt(ir.Path{ir.PathFields, "f-title"})
	assert.False(t, ok, "empty field is dropped")

	require.NoError(t, d.RemoveValueAt(context.Background(), ir.FieldPath("f-none", "loc-en")))
	assert.Equal(t, []string{"fields.f-title.loc-en", "fields.f-none.loc-en"}, changes)
}

func TestWrites_RejectNonValuePaths(t *testing.T) {
	d := New(testEntity())
	for _, p := range []ir.Path{nil, {"sys", "version"}, {ir.PathFields}, {ir.PathFields, "f-title"}, {ir.PathFields, "", "loc-en"}} {
		assert.ErrorIs(t, d.SetValueAt(context.Background(), p, 1), ErrInvalidPath, "path %v", p)
		assert.ErrorIs(t, d.RemoveValueAt(context.Background(), p), ErrInvalidPath, "path %v", p)
	}
	assert.Equal(t, int64(1), d.Sys().Version)
}

func TestPersister_ProvidesSys(t *testing.T) {
	var saved ir.Entity
	d := New(testEntity(), WithPersister(PersisterFunc(func(_ context.Context, e ir.Entity) (*ir.EntitySys, error) {
		saved = e
		sys := e.Sys.Clone()
		sys.Version = 10
		return &sys, nil
	})))

	require.NoError(t, d.SetValueAt(context.Background(), ir.FieldPath("f-title", "loc-en"), "Hi"))
	assert.Equal(t, "Hi", saved.Fields["f-title"]["loc-en"])
	assert.Equal(t, int64(10), d.Sys().Version)
}

func TestPersister_FailureLeavesDocumentUntouched(t *testing.T) {
	persistErr := errors.New("disk full")
	d := New(testEntity(), WithPersister(PersisterFunc(func(context.Context, ir.Entity) (*ir.EntitySys, error) {
		return nil, persistErr
	})))

	notified := false
	d.OnChange(func(ir.Path) { notified = true })

	err := d.SetValueAt(context.Background(), ir.FieldPath("f-title", "loc-en"), "Hi")
	assert.ErrorIs(t, err, persistErr)
	v, _ := d.GetValueAt(ir.FieldPath("f-title", "loc-en"))
	assert.Equal(t, "Hello", v)
	assert.False(t, notified)
}

func TestSetSys(t *testing.T) {
	d := New(testEntity())
	var got []int64
	unsub := d.OnSys(func(s ir.EntitySys) { got = append(got, s.Version) })

	d.SetSys(ir.EntitySys{ID: "e1", Type: ir.EntityTypeEntry, Version: 7, PublishedVersion: ir.V(6)})
	unsub()
	d.SetSys(ir.EntitySys{ID: "e1", Type: ir.EntityTypeEntry, Version: 8})

	assert.Equal(t, []int64{7}, got)
	assert.Equal(t, int64(8), d.Sys().Version)
}

func TestEntity_IsASnapshot(t *testing.T) {
	d := New(testEntity())
	e := d.Entity()
	e.Fields["f-title"]["loc-en"] = "mutated"

	v, _ := d.GetValueAt(ir.FieldPath("f-title", "loc-en"))
	assert.Equal(t, "Hello", v)
}
