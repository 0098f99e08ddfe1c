package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
)

// ErrPeerClosed is returned by Peer operations after Close.
var ErrPeerClosed = errors.New("channel: peer closed")

// Handshake is the connect message as seen by the peer.
type Handshake struct {
	// ID is the correlation id the peer must stamp on every call.
	ID string
	// Data is the handshake object, including "id".
	Data map[string]any
	// Queued holds the calls sent before the host connected, in order.
	Queued []Call
}

// Peer is the sandbox end of a channel. The demo peer process and the tests
// use it to drive a host the way sandboxed code would.
type Peer struct {
	transport   Transport
	unsubscribe func()
	calls       *inbox

	mu        sync.Mutex
	source    string
	handshake *Handshake
	connected chan struct{}
	pending   map[string]chan peerResponse
	nextCall  int
}

type peerResponse struct {
	Result any
	Err    *RPCError
}

// peerMessage decodes anything the host may post.
type peerMessage struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// NewPeer attaches a peer to the sandbox side of a transport.
func NewPeer(t Transport) *Peer {
	p := &Peer{
		transport: t,
		calls:     newInbox(),
		connected: make(chan struct{}),
		pending:   make(map[string]chan peerResponse),
	}
	p.unsubscribe = t.Subscribe(p.receive)
	return p
}

// SetSource overrides the correlation id stamped on outgoing calls. By
// default the peer adopts the id from the handshake.
func (p *Peer) SetSource(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = id
}

// WaitHandshake blocks until the host has connected.
func (p *Peer) WaitHandshake(ctx context.Context) (*Handshake, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.connected:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.handshake, nil
	}
}

// Next returns the next host → peer call received after the handshake.
func (p *Peer) Next(ctx context.Context) (Call, error) {
	for {
		if c, ok := p.calls.tryPop(); ok {
			return c, nil
		}
		select {
		case <-ctx.Done():
			return Call{}, ctx.Err()
		case <-p.calls.wait():
			if p.calls.isClosed() && p.calls.len() == 0 {
				return Call{}, ErrPeerClosed
			}
		}
	}
}

// Pending returns the number of host calls not yet consumed by Next.
func (p *Peer) Pending() int {
	return p.calls.len()
}

// Call invokes a host handler and waits for its response. A host error
// response is returned as *RPCError.
func (p *Peer) Call(ctx context.Context, method string, params ...any) (any, error) {
	if params == nil {
		params = []any{}
	}
	return p.CallRaw(ctx, method, params)
}

// CallRaw is Call with an arbitrary params value, which lets tests send
// malformed calls.
func (p *Peer) CallRaw(ctx context.Context, method string, params any) (any, error) {
	p.mu.Lock()
	p.nextCall++
	callID := strconv.Itoa(p.nextCall)
	source := p.source
	ch := make(chan peerResponse, 1)
	p.pending[callID] = ch
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, callID)
		p.mu.Unlock()
	}()

	msg, err := json.Marshal(map[string]any{
		"source": source,
		"method": method,
		"callId": callID,
		"params": params,
	})
	if err != nil {
		return nil, fmt.Errorf("encode call %s: %w", method, err)
	}
	if err := p.transport.Post(msg); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-ch:
		if resp.Err != nil {
			return nil, resp.Err
		}
		return resp.Result, nil
	}
}

// Close detaches the peer from its transport.
func (p *Peer) Close() {
	p.unsubscribe()
	p.calls.close()
}

func (p *Peer) receive(data []byte) {
	var msg peerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	if msg.Method == "" {
		p.resolve(msg)
		return
	}

	params, err := decodeParams(msg.Params)
	if err != nil {
		return
	}
	if msg.Method == MethodConnect {
		p.connect(params)
		return
	}
	p.calls.push(Call{Method: msg.Method, Params: params})
}

func (p *Peer) connect(params []any) {
	hs := &Handshake{Data: map[string]any{}}
	if len(params) > 0 {
		if data, ok := params[0].(map[string]any); ok {
			hs.Data = data
			hs.ID, _ = data["id"].(string)
		}
	}
	if len(params) > 1 {
		if queued, ok := params[1].([]any); ok {
			for _, q := range queued {
				hs.Queued = append(hs.Queued, decodeQueued(q))
			}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handshake != nil {
		return
	}
	p.handshake = hs
	if p.source == "" {
		p.source = hs.ID
	}
	close(p.connected)
}

func decodeQueued(v any) Call {
	m, _ := v.(map[string]any)
	c := Call{Params: []any{}}
	c.Method, _ = m["method"].(string)
	if params, ok := m["params"].([]any); ok {
		c.Params = params
	}
	return c
}

func (p *Peer) resolve(msg peerMessage) {
	p.mu.Lock()
	ch, ok := p.pending[msg.ID]
	p.mu.Unlock()
	if !ok {
		return
	}

	resp := peerResponse{Err: msg.Error}
	if msg.Error == nil && len(msg.Result) > 0 {
		var v any
		if err := json.Unmarshal(msg.Result, &v); err == nil {
			resp.Result = v
		}
	}
	select {
	case ch <- resp:
	default:
	}
}
