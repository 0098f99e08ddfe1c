// Package resource tracks the lifecycle state of one entity for the rest of
// the host and runs lifecycle actions against it.
//
// A Manager holds the latest ir.EntitySys and recomputes state from it on
// every change. Subscribers observe three streams: the deduplicated current
// state, {From, To} transitions produced by Apply, and the in-progress flag.
//
// Overlapping Apply calls are serialized. Each call captures its previous
// state only after the preceding call has finished, so two queued actions
// never plan from the same stale snapshot.
package resource

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/entitybridge/internal/entitystate"
	"github.com/roach88/entitybridge/internal/ir"
)

// Applier runs a lifecycle action. *entitystate.Planner satisfies it.
type Applier interface {
	Apply(ctx context.Context, action entitystate.Action, previous entitystate.State, entity ir.Entity) (*ir.EntitySys, error)
}

// EntityGetter returns the always-current entity payload.
type EntityGetter func() ir.Entity

// PreApplyHook runs before every action, e.g. to flush pending edits.
// An error aborts the action.
type PreApplyHook func(ctx context.Context) error

// Transition is a state change produced by a successful action.
type Transition struct {
	From entitystate.State `json:"from"`
	To   entitystate.State `json:"to"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithPreApply installs a hook run at the start of every Apply.
func WithPreApply(hook PreApplyHook) Option {
	return func(m *Manager) {
		m.preApply = hook
	}
}

// Manager is the reactive state holder for one entity.
type Manager struct {
	applyMu sync.Mutex

	mu         sync.Mutex
	sys        ir.EntitySys
	state      entitystate.State
	inProgress bool

	getEntity EntityGetter
	applier   Applier
	preApply  PreApplyHook

	subsMu    sync.Mutex
	nextSub   int
	stateSubs map[int]func(entitystate.State)
	transSubs map[int]func(Transition)
	progSubs  map[int]func(bool)
}

// New creates a Manager tracking sys. getEntity may be nil, in which case
// actions receive an entity carrying only the tracked metadata.
func New(sys ir.EntitySys, getEntity EntityGetter, applier Applier, opts ...Option) (*Manager, error) {
	state, err := entitystate.Compute(sys)
	if err != nil {
		return nil, fmt.Errorf("resource: %w", err)
	}
	m := &Manager{
		sys:       sys.Clone(),
		state:     state,
		getEntity: getEntity,
		applier:   applier,
		stateSubs: make(map[int]func(entitystate.State)),
		transSubs: make(map[int]func(Transition)),
		progSubs:  make(map[int]func(bool)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() entitystate.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Sys returns a copy of the tracked metadata.
func (m *Manager) Sys() ir.EntitySys {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sys.Clone()
}

// InProgress reports whether an action is running.
func (m *Manager) InProgress() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inProgress
}

// SetSys replaces the tracked metadata, typically from the live document
// stream. State subscribers are notified only if the computed state changed.
// No transition is emitted.
func (m *Manager) SetSys(sys ir.EntitySys) error {
	state, err := entitystate.Compute(sys)
	if err != nil {
		return fmt.Errorf("resource: %w", err)
	}

	m.mu.Lock()
	changed := state != m.state
	m.sys = sys.Clone()
	m.state = state
	m.mu.Unlock()

	if changed {
		for _, fn := range snapshot(&m.subsMu, m.stateSubs) {
			fn(state)
		}
	}
	return nil
}

// Apply runs action and returns the resulting metadata, which is nil after
// a delete.
//
// On success with metadata the tracked sys is replaced and a transition is
// emitted if the state differs from the one captured at the start. A delete
// emits nothing; the caller owns teardown. The in-progress flag is cleared
// on every path.
func (m *Manager) Apply(ctx context.Context, action entitystate.Action) (*ir.EntitySys, error) {
	m.applyMu.Lock()
	defer m.applyMu.Unlock()

	previous := m.State()
	m.setInProgress(true)
	defer m.setInProgress(false)

	if m.preApply != nil {
		if err := m.preApply(ctx); err != nil {
			slog.Debug("pre-apply hook failed", "action", action, "error", err)
			return nil, err
		}
	}

	sys, err := m.applier.Apply(ctx, action, previous, m.entity())
	if err != nil {
		return nil, err
	}
	if sys == nil {
		slog.Debug("action returned no metadata", "action", action, "from", previous)
		return nil, nil
	}

	if err := m.SetSys(*sys); err != nil {
		return nil, err
	}
	next := m.State()
	if next != previous {
		t := Transition{From: previous, To: next}
		slog.Debug("entity transitioned", "action", action, "from", t.From, "to", t.To)
		for _, fn := range snapshot(&m.subsMu, m.transSubs) {
			fn(t)
		}
	}
	out := sys.Clone()
	return &out, nil
}

func (m *Manager) entity() ir.Entity {
	if m.getEntity != nil {
		return m.getEntity()
	}
	return ir.Entity{Sys: m.Sys()}
}

func (m *Manager) setInProgress(v bool) {
	m.mu.Lock()
	m.inProgress = v
	m.mu.Unlock()
	for _, fn := range snapshot(&m.subsMu, m.progSubs) {
		fn(v)
	}
}

// OnState subscribes to state changes. The returned function unsubscribes.
func (m *Manager) OnState(fn func(entitystate.State)) func() {
	return subscribe(m, m.stateSubs, fn)
}

// OnTransition subscribes to transitions produced by Apply.
func (m *Manager) OnTransition(fn func(Transition)) func() {
	return subscribe(m, m.transSubs, fn)
}

// OnProgress subscribes to in-progress flag changes.
func (m *Manager) OnProgress(fn func(bool)) func() {
	return subscribe(m, m.progSubs, fn)
}

func subscribe[F any](m *Manager, subs map[int]F, fn F) func() {
	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	subs[id] = fn
	m.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subsMu.Lock()
			delete(subs, id)
			m.subsMu.Unlock()
		})
	}
}

// snapshot returns subscribers in subscription order so callbacks run
// without holding the lock.
func snapshot[F any](mu *sync.Mutex, subs map[int]F) []F {
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
