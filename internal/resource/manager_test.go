package resource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entitybridge/internal/entitystate"
	"github.com/roach88/entitybridge/internal/ir"
)

func changedSys() ir.EntitySys {
	return ir.EntitySys{ID: "e1", Type: ir.EntityTypeEntry, Version: 3, PublishedVersion: ir.V(1)}
}

func planner(fn entitystate.ClientFunc) *entitystate.Planner {
	return entitystate.NewPlanner(fn)
}

func TestNew_ComputesInitialState(t *testing.T) {
	m, err := New(changedSys(), nil, planner(nil))
	require.NoError(t, err)
	assert.Equal(t, entitystate.StateChanged, m.State())
	assert.False(t, m.InProgress())

	_, err = New(ir.EntitySys{ID: "x"}, nil, planner(nil))
	assert.ErrorIs(t, err, ir.ErrMissingType)
}

func TestApply_UnpublishChangedEmitsTransition(t *testing.T) {
	var calls []entitystate.Request
	client := func(_ context.Context, req entitystate.Request) (*ir.EntitySys, error) {
		calls = append(calls, req)
		return &ir.EntitySys{ID: "e1", Type: ir.EntityTypeEntry, Version: 4}, nil
	}
	m, err := New(changedSys(), nil, planner(client))
	require.NoError(t, err)

	var transitions []Transition
	m.OnTransition(func(tr Transition) { transitions = append(transitions, tr) })

	sys, err := m.Apply(context.Background(), entitystate.ActionUnpublish)
	require.NoError(t, err)
	require.NotNil(t, sys)

	require.Len(t, calls, 1)
	assert.Equal(t, "DELETE /entries/e1/published", calls[0].String())
	assert.Equal(t, []Transition{{From: entitystate.StateChanged, To: entitystate.StateDraft}}, transitions)
	assert.Equal(t, entitystate.StateDraft, m.State())
	assert.Equal(t, int64(4), m.Sys().Version)
	assert.False(t, m.InProgress())
}

func TestApply_ProgressSequence(t *testing.T) {
	var seenDuring bool
	var m *Manager
	client := func(_ context.Context, req entitystate.Request) (*ir.EntitySys, error) {
		seenDuring = m.InProgress()
		return &ir.EntitySys{ID: "e1", Type: ir.EntityTypeEntry, Version: 4, PublishedVersion: ir.V(3)}, nil
	}
	m, err := New(changedSys(), nil, planner(client))
	require.NoError(t, err)

	var progress []bool
	m.OnProgress(func(v bool) { progress = append(progress, v) })

	_, err = m.Apply(context.Background(), entitystate.ActionPublish)
	require.NoError(t, err)
	assert.True(t, seenDuring)
	assert.Equal(t, []bool{true, false}, progress)
}

func TestApply_PreApplyFailureAborts(t *testing.T) {
	called := false
	client := func(context.Context, entitystate.Request) (*ir.EntitySys, error) {
		called = true
		return nil, nil
	}
	hookErr := errors.New("flush failed")
	m, err := New(changedSys(), nil, planner(client), WithPreApply(func(context.Context) error {
		return hookErr
	}))
	require.NoError(t, err)

	var progress []bool
	m.OnProgress(func(v bool) { progress = append(progress, v) })

	_, err = m.Apply(context.Background(), entitystate.ActionPublish)
	assert.ErrorIs(t, err, hookErr)
	assert.False(t, called)
	assert.False(t, m.InProgress())
	assert.Equal(t, []bool{true, false}, progress)
}

func TestApply_PreApplyRunsBeforeBackend(t *testing.T) {
	var order []string
	client := func(context.Context, entitystate.Request) (*ir.EntitySys, error) {
		order = append(order, "backend")
		return &ir.EntitySys{ID: "e1", Type: ir.EntityTypeEntry, Version: 4, PublishedVersion: ir.V(3)}, nil
	}
	m, err := New(changedSys(), nil, planner(client), WithPreApply(func(context.Context) error {
		order = append(order, "hook")
		return nil
	}))
	require.NoError(t, err)

	_, err = m.Apply(context.Background(), entitystate.ActionPublish)
	require.NoError(t, err)
	assert.Equal(t, []string{"hook", "backend"}, order)
}

func TestApply_BackendFailureLeavesStateAlone(t *testing.T) {
	backendErr := errors.New("422 ValidationFailed")
	client := func(context.Context, entitystate.Request) (*ir.EntitySys, error) {
		return nil, backendErr
	}
	m, err := New(changedSys(), nil, planner(client))
	require.NoError(t, err)

	var transitions []Transition
	m.OnTransition(func(tr Transition) { transitions = append(transitions, tr) })

	_, err = m.Apply(context.Background(), entitystate.ActionPublish)
	assert.ErrorIs(t, err, backendErr)
	assert.Empty(t, transitions)
	assert.Equal(t, entitystate.StateChanged, m.State())
	assert.False(t, m.InProgress())
}

func TestApply_DeleteEmitsNoTransition(t *testing.T) {
	client := func(_ context.Context, req entitystate.Request) (*ir.EntitySys, error) {
		if req.Action == entitystate.ActionDelete {
			return nil, nil
		}
		return &ir.EntitySys{ID: "e1", Type: ir.EntityTypeEntry, Version: req.Version + 1}, nil
	}
	m, err := New(changedSys(), nil, planner(client))
	require.NoError(t, err)

	var transitions []Transition
	m.OnTransition(func(tr Transition) { transitions = append(transitions, tr) })

	sys, err := m.Apply(context.Background(), entitystate.ActionDelete)
	require.NoError(t, err)
	assert.Nil(t, sys)
	assert.Empty(t, transitions)
	assert.False(t, m.InProgress())
}

func TestApply_NoTransitionWhenStateUnchanged(t *testing.T) {
	client := func(_ context.Context, req entitystate.Request) (*ir.EntitySys, error) {
		return &ir.EntitySys{ID: "e1", Type: ir.EntityTypeEntry, Version: req.Version + 1}, nil
	}
	m, err := New(ir.EntitySys{ID: "e1", Type: ir.EntityTypeEntry, Version: 1}, nil, planner(client))
	require.NoError(t, err)

	var transitions []Transition
	m.OnTransition(func(tr Transition) { transitions = append(transitions, tr) })

	_, err = m.Apply(context.Background(), entitystate.ActionUnpublish)
	require.NoError(t, err)
	assert.Empty(t, transitions)
}

func TestApply_UsesEntityGetter(t *testing.T) {
	payload := ir.Entity{
		Sys:    changedSys(),
		Fields: map[string]map[string]any{"title": {"en": "hi"}},
	}
	var got ir.Entity
	applier := applierFunc(func(_ context.Context, _ entitystate.Action, _ entitystate.State, e ir.Entity) (*ir.EntitySys, error) {
		got = e
		sys := e.Sys.Clone()
		return &sys, nil
	})
	m, err := New(changedSys(), func() ir.Entity { return payload }, applier)
	require.NoError(t, err)

	_, err = m.Apply(context.Background(), entitystate.ActionPublish)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Fields["title"]["en"])
}

func TestApply_ConcurrentCallsAreSerialized(t *testing.T) {
	var active, maxActive int32
	var mu sync.Mutex
	var previous []entitystate.State

	applier := applierFunc(func(_ context.Context, action entitystate.Action, prev entitystate.State, e ir.Entity) (*ir.EntitySys, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			old := atomic.LoadInt32(&maxActive)
			if n <= old || atomic.CompareAndSwapInt32(&maxActive, old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)

		mu.Lock()
		previous = append(previous, prev)
		mu.Unlock()

		sys := e.Sys.Clone()
		sys.Version++
		switch action {
		case entitystate.ActionArchive:
			sys.ArchivedVersion = ir.V(sys.Version - 1)
		case entitystate.ActionUnarchive:
			sys.ArchivedVersion = nil
		}
		return &sys, nil
	})
	m, err := New(ir.EntitySys{ID: "e1", Type: ir.EntityTypeEntry, Version: 1}, nil, applier)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		action := entitystate.ActionArchive
		if i%2 == 1 {
			action = entitystate.ActionUnarchive
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Apply(context.Background(), action)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
	assert.Len(t, previous, 8)
	assert.Equal(t, int64(9), m.Sys().Version, "every action saw the previous result")
	assert.False(t, m.InProgress())
}

func TestSetSys_StateIsDeduplicated(t *testing.T) {
	m, err := New(ir.EntitySys{ID: "e1", Type: ir.EntityTypeEntry, Version: 1}, nil, planner(nil))
	require.NoError(t, err)

	var states []entitystate.State
	var transitions []Transition
	m.OnState(func(s entitystate.State) { states = append(states, s) })
	m.OnTransition(func(tr Transition) { transitions = append(transitions, tr) })

	require.NoError(t, m.SetSys(ir.EntitySys{ID: "e1", Type: ir.EntityTypeEntry, Version: 2}))
	require.NoError(t, m.SetSys(ir.EntitySys{ID: "e1", Type: ir.EntityTypeEntry, Version: 3, PublishedVersion: ir.V(2)}))
	require.NoError(t, m.SetSys(ir.EntitySys{ID: "e1", Type: ir.EntityTypeEntry, Version: 3, PublishedVersion: ir.V(2)}))
	require.NoError(t, m.SetSys(ir.EntitySys{ID: "e1", Type: ir.EntityTypeEntry, Version: 4, PublishedVersion: ir.V(2)}))

	assert.Equal(t, []entitystate.State{entitystate.StatePublished, entitystate.StateChanged}, states)
	assert.Empty(t, transitions, "live updates do not produce transitions")
	assert.Equal(t, int64(4), m.Sys().Version)

	assert.Error(t, m.SetSys(ir.EntitySys{ID: "e1"}))
	assert.Equal(t, entitystate.StateChanged, m.State())
}

func TestUnsubscribe(t *testing.T) {
	m, err := New(ir.EntitySys{ID: "e1", Type: ir.EntityTypeEntry, Version: 1}, nil, planner(nil))
	require.NoError(t, err)

	count := 0
	unsub := m.OnState(func(entitystate.State) { count++ })
	require.NoError(t, m.SetSys(ir.EntitySys{ID: "e1", Type: ir.EntityTypeEntry, Version: 2, ArchivedVersion: ir.V(1)}))
	unsub()
	unsub()
	require.NoError(t, m.SetSys(ir.EntitySys{ID: "e1", Type: ir.EntityTypeEntry, Version: 3}))
	assert.Equal(t, 1, count)
}

type applierFunc func(ctx context.Context, action entitystate.Action, previous entitystate.State, entity ir.Entity) (*ir.EntitySys, error)

func (f applierFunc) Apply(ctx context.Context, action entitystate.Action, previous entitystate.State, entity ir.Entity) (*ir.EntitySys, error) {
	return f(ctx, action, previous, entity)
}
