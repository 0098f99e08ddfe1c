package contenttype

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDirectory(t *testing.T) {
	schema, errs := Load("testdata/space")
	require.Empty(t, errs)

	require.Len(t, schema.ContentTypes, 1)
	ct, ok := schema.ContentType("post")
	require.True(t, ok)
	assert.Equal(t, "Post", ct.Name)
	require.Len(t, ct.Fields, 5)
	assert.Equal(t, []string{"title", "body", "views", "featured", "slug"}, fieldIDs(ct.Fields))

	assert.Equal(t, "en-US", schema.Locales.Default.Code)
	assert.Len(t, schema.Locales.Available, 2)

	_, ok = schema.ContentType("missing")
	assert.False(t, ok)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, errs := Load(filepath.Join(t.TempDir(), "nope"))
		require.Len(t, errs, 1)
		assert.Equal(t, ErrCodeNotFound, errs[0].(*LoadError).Code)
	})

	t.Run("no files", func(t *testing.T) {
		_, errs := Load(t.TempDir())
		require.Len(t, errs, 1)
		assert.Equal(t, ErrCodeNoFiles, errs[0].(*LoadError).Code)
	})

	t.Run("not a directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file.cue")
		require.NoError(t, os.WriteFile(path, []byte("x: 1"), 0o644))
		_, errs := Load(path)
		require.Len(t, errs, 1)
		assert.Equal(t, ErrCodeNotFound, errs[0].(*LoadError).Code)
	})
}

func TestLoadStringCollectsErrors(t *testing.T) {
	schema, errs := LoadString(`
		contentType: good: { name: "Good", fields: { a: { type: "Symbol" } } }
		contentType: bad: { name: "Bad", fields: { a: { type: "Money" } } }
		locales: { "en-US": { default: true } }
	`)

	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeInvalidType, errs[0].(*LoadError).Code)
	require.Len(t, schema.ContentTypes, 1)
	assert.Equal(t, "good", schema.ContentTypes[0].ID)
}

func TestLoadStringRequiresLocales(t *testing.T) {
	_, errs := LoadString(`contentType: post: { name: "Post", fields: { a: { type: "Symbol" } } }`)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeLocales, errs[0].(*LoadError).Code)
}

func TestLoadStringSyntaxError(t *testing.T) {
	_, errs := LoadString(`contentType: {`)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeBuildFailed, errs[0].(*LoadError).Code)
}

func TestMapFieldToErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeMissingField, MapFieldToErrorCode("name"))
	assert.Equal(t, ErrCodeLocales, MapFieldToErrorCode("fallback"))
	assert.Equal(t, ErrCodeGeneric, MapFieldToErrorCode("cue"))
}
