package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/entitybridge/internal/bridge"
	"github.com/roach88/entitybridge/internal/channel"
	"github.com/roach88/entitybridge/internal/contenttype"
	"github.com/roach88/entitybridge/internal/extension"
	"github.com/roach88/entitybridge/internal/ir"
	"github.com/roach88/entitybridge/internal/store"
	"github.com/roach88/entitybridge/internal/testutil"
)

// callTimeout bounds every peer call so a hung handler fails the scenario
// instead of the test binary.
const callTimeout = 10 * time.Second

// Harness is the scenario execution engine for one run.
type Harness struct {
	store    *store.Store
	session  *bridge.Session
	peer     *channel.Peer
	requests *testutil.RecordingClient
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Compile the CUE schema and import the entry
// 2. Wire a bridge session to a peer over an in-memory bus
// 3. Execute flow steps, recording the trace and checking expect clauses
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	schema, errs := contenttype.Load(scenario.Schema)
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to load schema: %w", errors.Join(errs...))
	}
	ct, ok := schema.ContentType(scenario.Entry.Sys.ContentTypeID)
	if !ok {
		return nil, fmt.Errorf("content type %q is not in the schema", scenario.Entry.Sys.ContentTypeID)
	}
	perms, err := scenario.Permissions.Permissions()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.Import(ctx, scenario.Entry); err != nil {
		return nil, fmt.Errorf("failed to import entry: %w", err)
	}
	entry, err := st.Get(ctx, scenario.Entry.Sys.ID)
	if err != nil {
		return nil, err
	}

	bus := channel.NewMemoryBus()
	hostSide, peerSide, closeFrame := bus.Frame()
	defer closeFrame()
	ch := channel.New(hostSide, testutil.NewSequentialIDs("chan"))
	defer ch.Destroy()
	peer := channel.NewPeer(peerSide)
	defer peer.Close()

	requests := testutil.NewRecordingClient(store.NewBackend(st, store.WithValidator(schema.Validate)))

	location := scenario.Location
	if location == "" {
		location = extension.LocationEntryEditor
		if scenario.Current != nil {
			location = extension.LocationEntryField
		}
	}
	session, err := bridge.New(extension.Config{
		Channel:     ch,
		Entry:       entry,
		ContentType: ct,
		Current:     scenario.Current,
		Locales:     schema.Locales,
		User:        ir.User{ID: "harness-user"},
		IDs:         extension.IDs{Space: "harness", Environment: "master", Extension: scenario.Name},
		Location:    location,
	}, st, bridge.Options{Client: requests, Permissions: perms})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	h := &Harness{
		store:    st,
		session:  session,
		peer:     peer,
		requests: requests,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	if err := session.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	hsCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if _, err := peer.WaitHandshake(hsCtx); err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}

	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}
	result.FinalState = string(session.Resource.State())

	actx := &AssertionContext{Store: st, Ctx: ctx, FinalState: result.FinalState}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

// executeFlow runs the flow steps in order. A failed call is part of the
// trace, not an execution error; only a broken channel aborts the run.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		params, err := normalize(step.Params)
		if err != nil {
			return fmt.Errorf("flow step %d: params: %w", i, err)
		}
		paramList, _ := params.([]any)
		if paramList == nil {
			paramList = []any{}
		}
		result.add(TraceEvent{Type: EventCall, Method: step.Call, Params: paramList})

		seen := len(h.requests.Calls())
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		res, callErr := h.peer.Call(callCtx, step.Call, paramList...)
		cancel()

		var rpcErr *channel.RPCError
		if callErr != nil && !errors.As(callErr, &rpcErr) {
			return fmt.Errorf("flow step %d: %s: %w", i, step.Call, callErr)
		}

		for _, c := range h.requests.Calls()[seen:] {
			result.add(TraceEvent{Type: EventRequest, Request: c.Request.String()})
		}
		if err := h.drainNotifications(ctx, result); err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}

		ev := TraceEvent{Type: EventResult, Method: step.Call, Result: res}
		if rpcErr != nil {
			ev.Error = rpcErr.Code
		}
		result.add(ev)

		state := string(h.session.Resource.State())
		for _, msg := range checkExpect(i, step, res, rpcErr, state) {
			result.AddError(msg)
		}

		h.logger.Info("flow step completed",
			"step", i,
			"call", step.Call,
			"error", ev.Error,
			"state", state,
		)
	}
	return nil
}

func (h *Harness) drainNotifications(ctx context.Context, result *Result) error {
	for h.peer.Pending() > 0 {
		c, err := h.peer.Next(ctx)
		if err != nil {
			return err
		}
		result.add(TraceEvent{Type: EventNotify, Method: c.Method, Params: c.Params})
	}
	return nil
}

// checkExpect compares one response with its expect clause.
func checkExpect(index int, step FlowStep, res any, rpcErr *channel.RPCError, state string) []string {
	exp := step.Expect
	if exp == nil {
		return nil
	}

	var msgs []string
	switch {
	case exp.Error != "" && rpcErr == nil:
		msgs = append(msgs, fmt.Sprintf("flow[%d] %s: expected error %s, call succeeded", index, step.Call, exp.Error))
	case exp.Error != "" && rpcErr.Code != exp.Error:
		msgs = append(msgs, fmt.Sprintf("flow[%d] %s: expected error %s, got %s", index, step.Call, exp.Error, rpcErr.Code))
	case exp.Error == "" && rpcErr != nil:
		msgs = append(msgs, fmt.Sprintf("flow[%d] %s: unexpected error %s: %s", index, step.Call, rpcErr.Code, rpcErr.Message))
	}

	if exp.Result != nil {
		want, err := normalize(exp.Result)
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("flow[%d] %s: expected result: %v", index, step.Call, err))
		} else if !subsetMatch(res, want) {
			msgs = append(msgs, fmt.Sprintf("flow[%d] %s: expected result %v, got %v", index, step.Call, want, res))
		}
	}

	if exp.State != "" && exp.State != state {
		msgs = append(msgs, fmt.Sprintf("flow[%d] %s: expected state %s, got %s", index, step.Call, exp.State, state))
	}
	return msgs
}

// normalize converts a YAML-decoded value into the shape the peer sees
// after JSON decoding: numbers become float64, maps map[string]any.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
