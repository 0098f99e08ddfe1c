package testutil

import (
	"context"
	"sync"

	"github.com/roach88/entitybridge/internal/entitystate"
	"github.com/roach88/entitybridge/internal/ir"
)

// Call is one request seen by a RecordingClient, with its outcome.
type Call struct {
	Request entitystate.Request
	Err     error
}

// RecordingClient wraps a ResourceClient and records every request in
// call order. Tests and the harness use it to assert on backend traffic.
//
// Thread-safety: safe for concurrent use.
type RecordingClient struct {
	next entitystate.ResourceClient

	mu    sync.Mutex
	calls []Call
}

var _ entitystate.ResourceClient = (*RecordingClient)(nil)

// NewRecordingClient records requests before forwarding them to next.
func NewRecordingClient(next entitystate.ResourceClient) *RecordingClient {
	return &RecordingClient{next: next}
}

// Do forwards req and records it.
func (r *RecordingClient) Do(ctx context.Context, req entitystate.Request) (*ir.EntitySys, error) {
	sys, err := r.next.Do(ctx, req)

	r.mu.Lock()
	r.calls = append(r.calls, Call{Request: req, Err: err})
	r.mu.Unlock()

	return sys, err
}

// Calls returns a copy of the recorded calls.
func (r *RecordingClient) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Requests returns the recorded requests rendered as "METHOD /path".
func (r *RecordingClient) Requests() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Request.String()
	}
	return out
}

// Reset forgets every recorded call.
func (r *RecordingClient) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
