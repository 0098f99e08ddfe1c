package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entitybridge/internal/entitystate"
)

func TestImport(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "entries.json", entriesJSON)

	out, _, err := execute(t, "", "import", "--db", filepath.Join(dir, "space.db"), src)
	require.NoError(t, err)
	assert.Equal(t, "Imported 2 entities\n  entry-1 v1 Draft\n  entry-2 v5 Changed\n", out)
}

func TestImport_Stdin(t *testing.T) {
	db := filepath.Join(t.TempDir(), "space.db")
	entry := `{"sys":{"id":"a1","type":"Asset","version":2,"publishedVersion":1},"fields":{}}`

	out, _, err := execute(t, entry, "--format", "json", "import", "--db", db, "-")
	require.NoError(t, err)

	var imported []ImportedEntity
	decodeResponse(t, out, &imported)
	require.Len(t, imported, 1)
	assert.Equal(t, ImportedEntity{ID: "a1", Version: 2, State: entitystate.StatePublished}, imported[0])
}

func TestImport_Rejects(t *testing.T) {
	db := filepath.Join(t.TempDir(), "space.db")

	_, _, err := execute(t, `{"sys":{"id":"x","version":1}}`, "import", "--db", db, "-")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = execute(t, ``, "import", "--db", db, "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty input")
}

func TestApply_Sequences(t *testing.T) {
	db := importEntries(t)

	out, _, err := execute(t, "", "--format", "json", "apply", "--db", db, "entry-2", "publish")
	require.NoError(t, err)
	var result ApplyResult
	decodeResponse(t, out, &result)
	assert.Equal(t, entitystate.StateChanged, result.From)
	assert.Equal(t, entitystate.StatePublished, result.To)
	assert.Equal(t, []string{"PUT /entries/entry-2/published"}, result.Requests)
	require.NotNil(t, result.Sys)
	assert.Equal(t, int64(6), result.Sys.Version)

	out, _, err = execute(t, "", "apply", "--db", db, "entry-2", "archive")
	require.NoError(t, err)
	assert.Equal(t,
		"entry-2: Published -> Archived\n  DELETE /entries/entry-2/published\n  PUT /entries/entry-2/archived\n",
		out)

	out, _, err = execute(t, "", "--format", "json", "log", "--db", db, "entry-2")
	require.NoError(t, err)
	var entries []LogEntry
	decodeResponse(t, out, &entries)
	require.Len(t, entries, 3)
	assert.Equal(t, entitystate.ActionPublish, entries[0].Action)
	assert.Equal(t, entitystate.ActionUnpublish, entries[1].Action)
	assert.Equal(t, entitystate.ActionArchive, entries[2].Action)
	assert.Equal(t, entitystate.StatePublished, entries[1].From)
	assert.Equal(t, entitystate.StateArchived, entries[2].To)
	assert.Equal(t, int64(8), entries[2].Sys.Version)
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Seq)
		assert.NotEmpty(t, e.ID)
	}
}

func TestApply_Delete(t *testing.T) {
	db := importEntries(t)

	out, _, err := execute(t, "", "--format", "json", "apply", "--db", db, "entry-1", "delete")
	require.NoError(t, err)
	var result ApplyResult
	decodeResponse(t, out, &result)
	assert.Equal(t, entitystate.StateDeleted, result.To)
	assert.Equal(t, []string{"DELETE /entries/entry-1"}, result.Requests)
	assert.Nil(t, result.Sys)

	_, _, err = execute(t, "", "apply", "--db", db, "entry-1", "publish")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestApply_ValidationGatesPublish(t *testing.T) {
	db := importEntries(t)

	out, _, err := execute(t, "", "--format", "json", "apply", "--db", db, "--schema", spaceSchema, "entry-2", "publish")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeRejected, resp.Error.Code)
	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok, "details: %#v", resp.Error.Details)
	assert.Equal(t, float64(422), details["status"])
	assert.Equal(t, "ValidationFailed", details["code"])

	// entry-1 has every required field.
	_, _, err = execute(t, "", "apply", "--db", db, "--schema", spaceSchema, "entry-1", "publish")
	require.NoError(t, err)
}

func TestApply_BadInput(t *testing.T) {
	db := importEntries(t)

	_, _, err := execute(t, "", "apply", "--db", db, "entry-1", "explode")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = execute(t, "", "apply", "--db", db, "ghost", "publish")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, _, err = execute(t, "", "apply", "--db", db, "--schema", "/nonexistent", "entry-1", "publish")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLog_Empty(t *testing.T) {
	db := importEntries(t)

	out, _, err := execute(t, "", "log", "--db", db, "entry-1")
	require.NoError(t, err)
	assert.Equal(t, "0 transitions for entry-1\n", out)
}
