package extension

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entitybridge/internal/channel"
	"github.com/roach88/entitybridge/internal/ir"
)

func TestConnect_Handshake(t *testing.T) {
	a, ch := newTestAdapter(t)
	require.NoError(t, a.Connect())
	require.Len(t, ch.connects, 1)

	h := asJSON(t, ch.connects[0])
	assert.Equal(t, LocationEntryField, h["location"])

	field := h["field"].(map[string]any)
	assert.Equal(t, "title", field["id"])
	assert.Equal(t, "de-DE", field["locale"])
	assert.Equal(t, "Hallo", field["value"])
	assert.Equal(t, true, field["required"])

	ids := h["ids"].(map[string]any)
	assert.Equal(t, map[string]any{
		"space":       "space-1",
		"environment": "master",
		"contentType": "ct-post",
		"entry":       "entry-1",
		"field":       "title",
		"user":        "user-1",
		"extension":   "ext-1",
	}, ids)

	entry := h["entry"].(map[string]any)
	assert.Len(t, entry, 1, "only sys is sent")
	assert.Equal(t, "entry-1", entry["sys"].(map[string]any)["id"])
}

func TestConnect_LogsProtocolVersion(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	a, _ := newTestAdapter(t)
	require.NoError(t, a.Connect())

	out := buf.String()
	assert.Contains(t, out, "extension connecting")
	assert.Contains(t, out, "protocol="+ir.ProtocolVersion)
	assert.Contains(t, out, "digest=")
}

func TestConnect_Twice(t *testing.T) {
	a, _ := newTestAdapter(t)
	require.NoError(t, a.Connect())
	assert.ErrorIs(t, a.Connect(), channel.ErrAlreadyConnected)
}

func TestHandshake_SanitizesUser(t *testing.T) {
	a, _ := newTestAdapter(t)
	user := asJSON(t, a.Handshake(testEntry()).User)

	assert.ElementsMatch(t, []string{"sys", "firstName", "lastName", "email", "avatarUrl", "spaceMembership"}, keys(user))
	assert.Equal(t, "user-1", user["sys"].(map[string]any)["id"])
	membership := user["spaceMembership"].(map[string]any)
	assert.Equal(t, true, membership["admin"])
	assert.Equal(t, []any{}, membership["roles"])
}

func TestHandshake_FieldInfo(t *testing.T) {
	a, _ := newTestAdapter(t)
	info := a.Handshake(testEntry()).FieldInfo
	require.Len(t, info, 2)

	title := info[0]
	assert.Equal(t, "title", title.ID)
	assert.True(t, title.Localized)
	assert.Equal(t, []string{"en-US", "de-DE"}, title.Locales)
	assert.Equal(t, map[string]any{"en-US": "Hello", "de-DE": "Hallo"}, title.Values, "removed locales are dropped")

	slug := info[1]
	assert.Equal(t, "slug", slug.ID)
	assert.False(t, slug.Localized)
	assert.Equal(t, []string{"en-US"}, slug.Locales, "non-localized fields report only the default locale")
	assert.Equal(t, map[string]any{"en-US": "hello"}, slug.Values)
}

func TestHandshake_LocalesAndContentType(t *testing.T) {
	a, _ := newTestAdapter(t)
	h := a.Handshake(testEntry())

	assert.Equal(t, []string{"en-US", "de-DE"}, h.Locales.Available)
	assert.Equal(t, "en-US", h.Locales.Default)
	assert.Equal(t, "English (United States)", h.Locales.Names["en-US"])
	assert.Contains(t, h.Locales.Names["de-DE"], "German", "unnamed locales fall back to the English display name")
	assert.Equal(t, map[string]string{"de-DE": "en-US"}, h.Locales.Fallbacks)
	assert.True(t, h.Locales.Optional["de-DE"])

	ct := h.ContentType
	assert.Equal(t, "ct-post", ct.Sys.ID)
	assert.Equal(t, "title", ct.DisplayField)
	require.Len(t, ct.Fields, 2)
	assert.Equal(t, "title", ct.Fields[0].ID)
	assert.Equal(t, "slug", ct.Fields[1].ID)

	assert.NotContains(t, mustMarshal(t, h), "f-title", "internal field ids never leak")
	assert.NotContains(t, mustMarshal(t, h), "loc-en", "internal locale codes never leak")
}

func TestHandshake_WithoutCurrentField(t *testing.T) {
	ch := newFakeChannel()
	cfg := testConfig(ch)
	cfg.Current = nil
	cfg.Location = LocationEntrySidebar
	a, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, a.Connect())
	h := asJSON(t, ch.connects[0])
	assert.Nil(t, h["field"])
	assert.Contains(t, h, "field", "field is sent as null")
	assert.NotContains(t, h["ids"], "field")
}

func TestUpdate_DecisionTable(t *testing.T) {
	snapshot := testEntry()
	snapshot.Fields["f-title"]["loc-de"] = "Servus"

	tests := []struct {
		name string
		path ir.Path
		want []channel.Call
	}{
		{"empty path", ir.Path{}, nil},
		{"sys path", ir.Path{"sys", "x"}, nil},
		{"all fields", ir.Path{"fields"}, []channel.Call{
			valueChanged("title", "en-US", "Hello"),
			valueChanged("title", "de-DE", "Servus"),
			valueChanged("slug", "en-US", "hello"),
		}},
		{"one field", ir.Path{"fields", "f-title"}, []channel.Call{
			valueChanged("title", "en-US", "Hello"),
			valueChanged("title", "de-DE", "Servus"),
		}},
		{"non-localized field", ir.Path{"fields", "f-slug"}, []channel.Call{
			valueChanged("slug", "en-US", "hello"),
		}},
		{"one value", ir.FieldPath("f-title", "loc-de"), []channel.Call{
			valueChanged("title", "de-DE", "Servus"),
		}},
		{"nested value", ir.Path{"fields", "f-title", "loc-en", "content", "0"}, []channel.Call{
			valueChanged("title", "en-US", "Hello"),
		}},
		{"removed value reads as nil", ir.FieldPath("f-slug", "loc-de"), []channel.Call{
			valueChanged("slug", "de-DE", nil),
		}},
		{"unknown field", ir.Path{"fields", "f-deleted"}, nil},
		{"unknown field value", ir.FieldPath("f-deleted", "loc-en"), nil},
		{"unknown locale", ir.FieldPath("f-title", "loc-removed"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ch := newTestAdapter(t)
			require.NoError(t, a.Update(tt.path, snapshot))
			assert.Equal(t, tt.want, ch.sent())
		})
	}
}

func TestUpdateSys(t *testing.T) {
	a, ch := newTestAdapter(t)
	sys := ir.EntitySys{ID: "entry-1", Type: ir.EntityTypeEntry, Version: 4}
	require.NoError(t, a.UpdateSys(sys))
	assert.Equal(t, []channel.Call{{Method: MethodSysChanged, Params: []any{sys}}}, ch.sent())
}

func TestRegisterHandler_Duplicate(t *testing.T) {
	a, _ := newTestAdapter(t)
	noop := func(context.Context, []any) (any, error) { return nil, nil }

	require.NoError(t, a.RegisterHandler("ping", noop))
	assert.ErrorIs(t, a.RegisterHandler("ping", noop), ErrDuplicateHandler)
	assert.ErrorIs(t, a.RegisterPathHandler("ping", nil), ErrDuplicateHandler)
	assert.ErrorIs(t, a.RegisterHandler("", noop), channel.ErrEmptyMethod)
}

func TestRegisterPathHandler_TranslatesIDs(t *testing.T) {
	a, ch := newTestAdapter(t)
	var gotPath ir.Path
	var gotRest []any
	require.NoError(t, a.RegisterPathHandler("touch", func(_ context.Context, path ir.Path, rest []any) (any, error) {
		gotPath, gotRest = path, rest
		return "ok", nil
	}))

	res, err := ch.call(t, "touch", "title", "de-DE", 1, "x")
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, ir.FieldPath("f-title", "loc-de"), gotPath)
	assert.Equal(t, []any{1, "x"}, gotRest)
}

func TestRegisterPathHandler_BadParams(t *testing.T) {
	a, ch := newTestAdapter(t)
	called := false
	require.NoError(t, a.RegisterPathHandler("touch", func(context.Context, ir.Path, []any) (any, error) {
		called = true
		return nil, nil
	}))

	var rpcErr *channel.RPCError
	_, err := ch.call(t, "touch", "title")
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, channel.ErrCodeInvalidParams, rpcErr.Code)

	_, err = ch.call(t, "touch", 1, 2)
	require.ErrorAs(t, err, &rpcErr)

	var idErr *UnknownIDError
	_, err = ch.call(t, "touch", "f-title", "en-US")
	require.ErrorAs(t, err, &idErr, "internal ids are not accepted from the peer")
	assert.Equal(t, "field", idErr.Kind)

	_, err = ch.call(t, "touch", "title", "loc-en")
	require.ErrorAs(t, err, &idErr)
	assert.Equal(t, "locale", idErr.Kind)
	assert.False(t, called)
}

func TestTracking_OnlyAfterSuccess(t *testing.T) {
	ch := newFakeChannel()
	cfg := testConfig(ch)
	var events []Event
	cfg.Tracker = TrackerFunc(func(_ context.Context, ev Event) error {
		events = append(events, ev)
		return nil
	})
	a, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, a.RegisterHandler("ok", func(context.Context, []any) (any, error) { return 1, nil }))
	require.NoError(t, a.RegisterHandler("fail", func(context.Context, []any) (any, error) { return nil, errors.New("no") }))

	_, err = ch.call(t, "ok")
	require.NoError(t, err)
	_, err = ch.call(t, "fail")
	require.Error(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].Method)
	assert.Equal(t, LocationEntryField, events[0].Location)
	assert.Equal(t, "ext-1", events[0].Extension)
}

func TestTracking_FailuresAreSwallowed(t *testing.T) {
	for name, tracker := range map[string]Tracker{
		"error": TrackerFunc(func(context.Context, Event) error { return errors.New("tracker down") }),
		"panic": TrackerFunc(func(context.Context, Event) error { panic("tracker exploded") }),
	} {
		t.Run(name, func(t *testing.T) {
			ch := newFakeChannel()
			cfg := testConfig(ch)
			cfg.Tracker = tracker
			a, err := New(cfg)
			require.NoError(t, err)
			require.NoError(t, a.RegisterHandler("ok", func(context.Context, []any) (any, error) { return "result", nil }))

			res, err := ch.call(t, "ok")
			require.NoError(t, err)
			assert.Equal(t, "result", res)
		})
	}
}

func valueChanged(field, locale string, value any) channel.Call {
	return channel.Call{Method: MethodValueChanged, Params: []any{field, locale, value}}
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func mustMarshal(t *testing.T, v any) string {
	t.Helper()
	raw, err := jsonMarshal(v)
	require.NoError(t, err)
	return string(raw)
}
