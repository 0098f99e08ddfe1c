package entitystate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entitybridge/internal/ir"
)

func TestTargetOf(t *testing.T) {
	want := map[Action]State{
		ActionPublish:   StatePublished,
		ActionUnpublish: StateDraft,
		ActionArchive:   StateArchived,
		ActionUnarchive: StateDraft,
		ActionDelete:    StateDeleted,
	}
	for _, a := range Actions {
		got, err := TargetOf(a)
		require.NoError(t, err)
		assert.Equal(t, want[a], got, "action %s", a)
	}

	_, err := TargetOf("explode")
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, ErrCodeUnknownAction, te.Code)
}

func TestRequestFor(t *testing.T) {
	sys := ir.EntitySys{ID: "e1", Type: ir.EntityTypeEntry, Version: 4}
	tests := []struct {
		action Action
		want   string
	}{
		{ActionPublish, "PUT /entries/e1/published"},
		{ActionUnpublish, "DELETE /entries/e1/published"},
		{ActionArchive, "PUT /entries/e1/archived"},
		{ActionUnarchive, "DELETE /entries/e1/archived"},
		{ActionDelete, "DELETE /entries/e1"},
	}
	for _, tt := range tests {
		req, err := RequestFor(tt.action, sys)
		require.NoError(t, err)
		assert.Equal(t, tt.want, req.String())
		assert.Equal(t, int64(4), req.Version)
		assert.Equal(t, tt.action, req.Action)
	}

	asset := ir.EntitySys{ID: "a1", Type: ir.EntityTypeAsset, Version: 1}
	req, err := RequestFor(ActionPublish, asset)
	require.NoError(t, err)
	assert.Equal(t, "/assets/a1/published", req.Path())
}

func TestRequestFor_RejectsMalformed(t *testing.T) {
	_, err := RequestFor(ActionPublish, ir.EntitySys{ID: "x"})
	assert.ErrorIs(t, err, ir.ErrMissingType)

	_, err = RequestFor("nope", ir.EntitySys{ID: "x", Type: ir.EntityTypeEntry})
	assert.Error(t, err)
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("archive")
	require.NoError(t, err)
	assert.Equal(t, ActionArchive, a)

	_, err = ParseAction("Archive")
	assert.Error(t, err)
}
