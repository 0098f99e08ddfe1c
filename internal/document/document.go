// Package document holds the live, editable value of one entity and
// broadcasts structural changes to subscribers.
//
// Writes are addressed by ir.Path and limited to field data. Each write
// produces exactly one change notification for the written path followed by
// a metadata notification carrying the bumped sys. Writes are not coalesced.
package document

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/entitybridge/internal/ir"
)

// ErrInvalidPath is returned for writes outside ["fields", id, locale].
var ErrInvalidPath = errors.New("document: path must address a field value")

// Persister saves the entity after a write and returns its new metadata.
type Persister interface {
	Persist(ctx context.Context, entity ir.Entity) (*ir.EntitySys, error)
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(ctx context.Context, entity ir.Entity) (*ir.EntitySys, error)

// Persist calls f.
func (f PersisterFunc) Persist(ctx context.Context, entity ir.Entity) (*ir.EntitySys, error) {
	return f(ctx, entity)
}

// Option configures a Document.
type Option func(*Document)

// WithPersister saves every write through p. Without one, the document
// bumps the version locally.
func WithPersister(p Persister) Option {
	return func(d *Document) {
		d.persister = p
	}
}

// Document is an in-memory reactive entity.
type Document struct {
	// writeMu orders writes with their notifications.
	writeMu sync.Mutex

	mu        sync.RWMutex
	entity    ir.Entity
	persister Persister

	subsMu     sync.Mutex
	nextSub    int
	changeSubs map[int]func(ir.Path)
	sysSubs    map[int]func(ir.EntitySys)
}

// New creates a document holding a copy of entity.
func New(entity ir.Entity, opts ...Option) *Document {
	e := entity.Clone()
	if e.Fields == nil {
		e.Fields = make(map[string]map[string]any)
	}
	d := &Document{
		entity:     e,
		changeSubs: make(map[int]func(ir.Path)),
		sysSubs:    make(map[int]func(ir.EntitySys)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Entity returns a snapshot of the current value.
func (d *Document) Entity() ir.Entity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.entity.Clone()
}

// Sys returns the current metadata.
func (d *Document) Sys() ir.EntitySys {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.entity.Sys.Clone()
}

// GetValueAt reads the value at path from a snapshot.
func (d *Document) GetValueAt(path ir.Path) (any, bool) {
	return d.Entity().ValueAt(path)
}

// SetValueAt writes one field value.
func (d *Document) SetValueAt(ctx context.Context, path ir.Path, value any) error {
	if !isValuePath(path) {
		return fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	return d.write(ctx, path, func(fields map[string]map[string]any) {
		locales, ok := fields[path[1]]
		if !ok {
			locales = make(map[string]any)
			fields[path[1]] = locales
		}
		locales[path[2]] = value
	})
}

// RemoveValueAt deletes one field value. Removing an absent value still
// notifies subscribers.
func (d *Document) RemoveValueAt(ctx context.Context, path ir.Path) error {
	if !isValuePath(path) {
		return fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	return d.write(ctx, path, func(fields map[string]map[string]any) {
		locales, ok := fields[path[1]]
		if !ok {
			return
		}
		delete(locales, path[2])
		if len(locales) == 0 {
			delete(fields, path[1])
		}
	})
}

// SetSys replaces the metadata, e.g. after a lifecycle action, and notifies
// metadata subscribers.
func (d *Document) SetSys(sys ir.EntitySys) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	d.entity.Sys = sys.Clone()
	d.mu.Unlock()

	d.emitSys(sys)
}

func (d *Document) write(ctx context.Context, path ir.Path, mutate func(map[string]map[string]any)) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	next := d.Entity()
	mutate(next.Fields)

	if d.persister != nil {
		sys, err := d.persister.Persist(ctx, next)
		if err != nil {
			return fmt.Errorf("document: persist %s: %w", path, err)
		}
		if sys != nil {
			next.Sys = sys.Clone()
		}
	} else {
		next.Sys.Version++
	}

	d.mu.Lock()
	d.entity = next
	d.mu.Unlock()

	for _, fn := range listeners(&d.subsMu, d.changeSubs) {
		fn(path.Clone())
	}
	d.emitSys(next.Sys)
	return nil
}

func (d *Document) emitSys(sys ir.EntitySys) {
	for _, fn := range listeners(&d.subsMu, d.sysSubs) {
		fn(sys.Clone())
	}
}

// OnChange subscribes to write paths. The returned function unsubscribes.
func (d *Document) OnChange(fn func(ir.Path)) func() {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	id := d.nextSub
	d.nextSub++
	d.changeSubs[id] = fn
	return d.unsubscriber(func() { delete(d.changeSubs, id) })
}

// OnSys subscribes to metadata updates.
func (d *Document) OnSys(fn func(ir.EntitySys)) func() {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	id := d.nextSub
	d.nextSub++
	d.sysSubs[id] = fn
	return d.unsubscriber(func() { delete(d.sysSubs, id) })
}

func (d *Document) unsubscriber(remove func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			d.subsMu.Lock()
			remove()
			d.subsMu.Unlock()
		})
	}
}

// listeners returns subs in subscription order, copied so callbacks run
// without holding the lock.
func listeners[F any](mu *sync.Mutex, subs map[int]F) []F {
	mu.Lock()
	defer mu.Unlock()
	ids := make([]int, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]F, len(ids))
	for i, id := range ids {
		out[i] = subs[id]
	}
	return out
}

func isValuePath(p ir.Path) bool {
	return len(p) == 3 && p.IsField() && p[1] != "" && p[2] != ""
}
