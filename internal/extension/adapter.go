// Package extension adapts a host-managed entity to a sandboxed extension
// over a message channel.
//
// The Adapter owns three jobs: building the handshake payload on connect,
// translating document changes into valueChanged notifications, and
// registering the RPC handlers the peer can call. Every identifier crossing
// the channel goes through an idmap.Map, so the peer only ever sees public
// field ids and locale codes.
package extension

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/entitybridge/internal/channel"
	"github.com/roach88/entitybridge/internal/idmap"
	"github.com/roach88/entitybridge/internal/ir"
)

// Methods sent from host to peer.
const (
	MethodValueChanged = "valueChanged"
	MethodSysChanged   = "sysChanged"
)

// ErrDuplicateHandler is returned when a handler name is registered twice.
var ErrDuplicateHandler = errors.New("extension: handler already registered")

// Handler answers a peer call.
type Handler func(ctx context.Context, params []any) (any, error)

// PathHandler answers a peer call whose first two params are a public field
// id and a public locale code. They arrive pre-translated as an internal
// document path; rest holds the remaining params.
type PathHandler func(ctx context.Context, path ir.Path, rest []any) (any, error)

// Adapter binds one entity to one sandboxed peer.
type Adapter struct {
	cfg     Config
	ids     *idmap.Map
	channel Channel
	tracker Tracker

	mu       sync.Mutex
	handlers map[string]bool
}

// New validates cfg and builds the identifier map. It fails fast on any
// configuration problem.
func New(cfg Config) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ids, err := idmap.New(cfg.ContentType.Fields, cfg.Locales.Available)
	if err != nil {
		return nil, &ConfigError{Invalid: []string{err.Error()}}
	}
	return &Adapter{
		cfg:      cfg,
		ids:      ids,
		channel:  cfg.Channel,
		tracker:  cfg.Tracker,
		handlers: make(map[string]bool),
	}, nil
}

// IDs returns the identifier map.
func (a *Adapter) IDs() *idmap.Map {
	return a.ids
}

// Config returns the configuration the adapter was built from.
func (a *Adapter) Config() Config {
	return a.cfg
}

// Connect sends the handshake built from the configured entry snapshot.
func (a *Adapter) Connect() error {
	return a.ConnectWith(a.cfg.Entry)
}

// ConnectWith sends the handshake built from entry, which should be the
// latest document value.
func (a *Adapter) ConnectWith(entry ir.Entity) error {
	h := a.Handshake(entry)
	if digest, err := handshakeDigest(h); err == nil {
		slog.Debug("extension connecting",
			"extension", a.cfg.IDs.Extension,
			"location", a.cfg.Location,
			"protocol", ir.ProtocolVersion,
			"digest", digest,
		)
	}
	return a.channel.Connect(h)
}

// Update notifies the peer of a document change at path. snapshot is the
// document value after the change.
//
// Only field-rooted paths produce notifications. A path naming a field or
// locale the adapter does not know is dropped silently, because document
// changes can race with content type changes.
func (a *Adapter) Update(path ir.Path, snapshot ir.Entity) error {
	if !path.IsField() {
		return nil
	}

	var errs []error
	notify := func(fieldID, locale string) {
		if err := a.notifyValue(fieldID, locale, snapshot); err != nil {
			errs = append(errs, err)
		}
	}

	switch len(path) {
	case 1:
		for _, f := range a.cfg.ContentType.Fields {
			for _, locale := range a.applicableLocales(f) {
				notify(f.ID, locale)
			}
		}
	case 2:
		field, ok := a.cfg.ContentType.FieldByID(path[1])
		if !ok {
			return nil
		}
		for _, locale := range a.applicableLocales(field) {
			notify(field.ID, locale)
		}
	default:
		notify(path[1], path[2])
	}
	return errors.Join(errs...)
}

func (a *Adapter) notifyValue(fieldID, locale string, snapshot ir.Entity) error {
	publicField, ok := a.ids.Field.ToPublic(fieldID)
	if !ok {
		slog.Debug("dropping update for unknown field", "field", fieldID)
		return nil
	}
	publicLocale, ok := a.ids.Locale.ToPublic(locale)
	if !ok {
		slog.Debug("dropping update for unknown locale", "locale", locale)
		return nil
	}
	value, _ := snapshot.ValueAt(ir.FieldPath(fieldID, locale))
	return a.channel.Send(MethodValueChanged, []any{publicField, publicLocale, value})
}

// UpdateSys notifies the peer of new entry metadata.
func (a *Adapter) UpdateSys(sys ir.EntitySys) error {
	return a.channel.Send(MethodSysChanged, []any{sys})
}

// RegisterHandler exposes fn to the peer as name.
func (a *Adapter) RegisterHandler(name string, fn Handler) error {
	if name == "" {
		return channel.ErrEmptyMethod
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.handlers[name] {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, name)
	}
	if err := a.channel.Handle(name, channel.HandlerFunc(a.tracked(name, fn))); err != nil {
		return err
	}
	a.handlers[name] = true
	return nil
}

// RegisterPathHandler exposes fn to the peer as name, translating the
// leading (publicFieldID, publicLocale) params into an internal path.
func (a *Adapter) RegisterPathHandler(name string, fn PathHandler) error {
	return a.RegisterHandler(name, func(ctx context.Context, params []any) (any, error) {
		path, err := a.pathFromParams(params)
		if err != nil {
			return nil, err
		}
		return fn(ctx, path, params[2:])
	})
}

func (a *Adapter) pathFromParams(params []any) (ir.Path, error) {
	if len(params) < 2 {
		return nil, &channel.RPCError{Code: channel.ErrCodeInvalidParams, Message: "expected field id and locale code"}
	}
	publicField, ok1 := params[0].(string)
	publicLocale, ok2 := params[1].(string)
	if !ok1 || !ok2 {
		return nil, &channel.RPCError{Code: channel.ErrCodeInvalidParams, Message: "field id and locale code must be strings"}
	}
	fieldID, ok := a.ids.Field.ToInternal(publicField)
	if !ok {
		return nil, &UnknownIDError{Kind: "field", ID: publicField}
	}
	locale, ok := a.ids.Locale.ToInternal(publicLocale)
	if !ok {
		return nil, &UnknownIDError{Kind: "locale", ID: publicLocale}
	}
	return ir.FieldPath(fieldID, locale), nil
}

// tracked wraps fn so the tracker sees every successful call. The tracker
// can neither fail nor panic the call.
func (a *Adapter) tracked(name string, fn Handler) Handler {
	return func(ctx context.Context, params []any) (any, error) {
		start := time.Now()
		res, err := fn(ctx, params)
		if err != nil {
			return nil, err
		}
		a.track(ctx, Event{
			Method:    name,
			Location:  a.cfg.Location,
			Extension: a.cfg.IDs.Extension,
			Duration:  time.Since(start),
		})
		return res, nil
	}
}

func (a *Adapter) track(ctx context.Context, ev Event) {
	if a.tracker == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("tracker panicked", "method", ev.Method, "panic", r)
		}
	}()
	if err := a.tracker.Track(ctx, ev); err != nil {
		slog.Warn("tracker failed", "method", ev.Method, "error", err)
	}
}

func handshakeDigest(h Handshake) (string, error) {
	raw, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", err
	}
	return ir.HandshakeDigest(payload)
}
