package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// decodeResponse parses a JSON CLIResponse and re-decodes its data into v.
func decodeResponse(t *testing.T, out string, v any) CLIResponse {
	t.Helper()
	var resp struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	if v != nil && len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, v))
	}
	return resp.CLIResponse
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const entriesJSON = `[
  {"sys": {"id": "entry-1", "type": "Entry", "version": 1, "contentTypeId": "post"},
   "fields": {"title": {"loc-en": "Hello"}, "slug": {"loc-en": "hello"}}},
  {"sys": {"id": "entry-2", "type": "Entry", "version": 5, "publishedVersion": 3, "contentTypeId": "post"},
   "fields": {"title": {"loc-en": "Changed"}}}
]`

// importEntries creates a database holding entriesJSON.
func importEntries(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	db := filepath.Join(dir, "space.db")
	src := writeFile(t, dir, "entries.json", entriesJSON)
	_, _, err := execute(t, "", "import", "--db", db, src)
	require.NoError(t, err)
	return db
}

const spaceSchema = "../contenttype/testdata/space"
