package extension

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/entitybridge/internal/channel"
	"github.com/roach88/entitybridge/internal/ir"
)

const testTimeout = 5 * time.Second

// fakeChannel records what the adapter does with its channel.
type fakeChannel struct {
	mu       sync.Mutex
	connects []any
	sends    []channel.Call
	handlers map[string]channel.HandlerFunc
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string]channel.HandlerFunc)}
}

func (c *fakeChannel) Connect(data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.connects) > 0 {
		return channel.ErrAlreadyConnected
	}
	c.connects = append(c.connects, data)
	return nil
}

func (c *fakeChannel) Send(method string, params []any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, channel.Call{Method: method, Params: params})
	return nil
}

func (c *fakeChannel) Handle(method string, fn channel.HandlerFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[method] = fn
	return nil
}

func (c *fakeChannel) call(t *testing.T, method string, params ...any) (any, error) {
	t.Helper()
	c.mu.Lock()
	fn, ok := c.handlers[method]
	c.mu.Unlock()
	require.True(t, ok, "no handler for %s", method)
	return fn(context.Background(), params)
}

func (c *fakeChannel) sent() []channel.Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]channel.Call(nil), c.sends...)
}

func testContentType() ir.ContentType {
	return ir.ContentType{
		ID:           "ct-post",
		Name:         "Post",
		DisplayField: "f-title",
		Fields: []ir.Field{
			{ID: "f-title", APIName: "title", Name: "Title", Type: "Symbol", Localized: true, Required: true},
			{ID: "f-slug", APIName: "slug", Name: "Slug", Type: "Symbol"},
		},
	}
}

func testLocales() ir.LocaleSettings {
	en := ir.Locale{Code: "en-US", InternalCode: "loc-en", Name: "English (United States)", Default: true}
	de := ir.Locale{Code: "de-DE", InternalCode: "loc-de", FallbackCode: "en-US", Optional: true}
	return ir.LocaleSettings{Available: []ir.Locale{en, de}, Default: en}
}

func testEntry() ir.Entity {
	return ir.Entity{
		Sys: ir.EntitySys{ID: "entry-1", Type: ir.EntityTypeEntry, Version: 3, PublishedVersion: ir.V(1), ContentTypeID: "ct-post"},
		Fields: map[string]map[string]any{
			"f-title": {"loc-en": "Hello", "loc-de": "Hallo", "loc-removed": "stale"},
			"f-slug":  {"loc-en": "hello"},
		},
	}
}

func testConfig(ch Channel) Config {
	return Config{
		Channel:     ch,
		Entry:       testEntry(),
		ContentType: testContentType(),
		Current:     &ir.FieldLocale{FieldID: "f-title", LocaleCode: "loc-de"},
		Locales:     testLocales(),
		User: ir.User{
			ID:        "user-1",
			FirstName: "Ada",
			LastName:  "Lovelace",
			Email:     "ada@example.com",
			SpaceMembership: ir.Membership{
				ID:    "membership-1",
				Admin: true,
			},
			Extra: map[string]any{"secret": "do-not-leak"},
		},
		Parameters: Parameters{Instance: map[string]any{"theme": "dark"}},
		IDs:        IDs{Space: "space-1", Environment: "master", Extension: "ext-1"},
		Location:   LocationEntryField,
	}
}

func newTestAdapter(t *testing.T) (*Adapter, *fakeChannel) {
	t.Helper()
	ch := newFakeChannel()
	a, err := New(testConfig(ch))
	require.NoError(t, err)
	return a, ch
}

// asJSON round-trips v through JSON, the way the peer would see it.
func asJSON(t *testing.T, v any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func jsonMarshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
