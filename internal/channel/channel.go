package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// HandlerFunc answers one peer → host call. The returned value is sent back
// as the result; a returned error (or a panic) is sent back as an error
// response.
type HandlerFunc func(ctx context.Context, params []any) (any, error)

var (
	// ErrAlreadyConnected is returned by a second Connect call.
	ErrAlreadyConnected = errors.New("channel: already connected")

	// ErrDestroyed is returned when sending on a destroyed channel.
	ErrDestroyed = errors.New("channel: destroyed")

	// ErrEmptyMethod is returned when a call or handler has no method name.
	ErrEmptyMethod = errors.New("channel: method name must not be empty")
)

// Channel is the host end of a sandbox message channel.
//
// Thread-safety model:
//   - Send, Connect, Handle, Destroy: safe from any goroutine
//   - Handlers run on their own goroutine, one per inbound call
//
// INVARIANTS:
//   - nothing is posted before the handshake
//   - queued calls are flushed once, in arrival order, inside the handshake
//   - after Destroy no inbound message is dispatched
type Channel struct {
	id        string
	transport Transport

	mu          sync.Mutex
	handlers    map[string]HandlerFunc
	queue       []Call
	connected   bool
	destroyed   bool
	unsubscribe func()

	// postMu serializes posts so a Send racing Connect cannot overtake
	// the handshake.
	postMu sync.Mutex

	inflight sync.WaitGroup
}

// New creates a channel bound to transport and starts listening for peer
// traffic. The correlation id is drawn from gen once, here.
func New(transport Transport, gen IDGenerator) *Channel {
	c := &Channel{
		id:        gen.Generate(),
		transport: transport,
		handlers:  make(map[string]HandlerFunc),
	}
	c.unsubscribe = transport.Subscribe(c.dispatch)
	return c
}

// ID returns the correlation id.
func (c *Channel) ID() string {
	return c.id
}

// Handle registers fn as the handler for method, replacing any previous one.
// The handler table belongs to this channel instance only.
func (c *Channel) Handle(method string, fn HandlerFunc) error {
	if method == "" {
		return ErrEmptyMethod
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[method] = fn
	return nil
}

// Connect performs the handshake. data must encode as a JSON object; the
// correlation id is merged into it under "id". Every call queued by Send
// so far travels in the same message.
func (c *Channel) Connect(data any) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	if c.connected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}

	payload, err := handshakeData(c.id, data)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	queued := make([]any, len(c.queue))
	for i, call := range c.queue {
		if call.Params == nil {
			call.Params = []any{}
		}
		queued[i] = call
	}
	c.queue = nil
	c.connected = true

	c.postMu.Lock()
	c.mu.Unlock()
	defer c.postMu.Unlock()

	msg, err := encodeCall(Call{Method: MethodConnect, Params: []any{payload, queued}})
	if err != nil {
		return fmt.Errorf("encode handshake: %w", err)
	}

	slog.Debug("channel connecting", "channel", c.id, "queued", len(queued))
	return c.transport.Post(msg)
}

// Send calls method on the peer. Before Connect the call is queued; after
// Connect it is posted immediately.
func (c *Channel) Send(method string, params []any) error {
	if method == "" {
		return ErrEmptyMethod
	}
	call := Call{Method: method, Params: params}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	if !c.connected {
		c.queue = append(c.queue, call)
		c.mu.Unlock()
		return nil
	}
	c.postMu.Lock()
	c.mu.Unlock()
	defer c.postMu.Unlock()

	msg, err := encodeCall(call)
	if err != nil {
		return fmt.Errorf("encode call %s: %w", method, err)
	}
	return c.transport.Post(msg)
}

// Connected reports whether the handshake has been sent.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Destroy detaches the channel from its transport. Subsequent inbound
// traffic is dropped and pending handler results are discarded. Safe to call
// repeatedly and after the peer is gone.
func (c *Channel) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	c.queue = nil
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	slog.Debug("channel destroyed", "channel", c.id)
}

// Wait blocks until every handler started so far has finished.
func (c *Channel) Wait() {
	c.inflight.Wait()
}

// dispatch is the transport listener. It never blocks: matching calls are
// handed to a handler goroutine.
func (c *Channel) dispatch(data []byte) {
	var in inboundCall
	if err := json.Unmarshal(data, &in); err != nil {
		slog.Debug("channel dropped undecodable message", "channel", c.id, "error", err)
		return
	}
	if in.Source != c.id {
		return
	}
	if in.Method == "" || in.CallID == "" {
		return
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	handler, ok := c.handlers[in.Method]
	if ok {
		c.inflight.Add(1)
	}
	c.mu.Unlock()

	if !ok {
		slog.Debug("channel ignored unknown method", "channel", c.id, "method", in.Method)
		return
	}

	go func() {
		defer c.inflight.Done()
		res, err := c.invoke(handler, in)
		c.respond(in.CallID, res, err)
	}()
}

// invoke runs a handler, converting a panic into an error result.
func (c *Channel) invoke(handler HandlerFunc, in inboundCall) (res any, err error) {
	params, err := decodeParams(in.Params)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("channel handler panicked",
				"channel", c.id,
				"method", in.Method,
				"panic", r,
			)
			res = nil
			err = &RPCError{Code: ErrCodePanic, Message: fmt.Sprint(r)}
		}
	}()
	return handler(context.Background(), params)
}

// respond posts the outcome of one call. Results of calls that finish after
// Destroy are discarded.
func (c *Channel) respond(callID string, res any, err error) {
	var msg []byte
	var encErr error
	if err != nil {
		msg, encErr = json.Marshal(failure{ID: callID, Error: toRPCError(err)})
	} else {
		msg, encErr = json.Marshal(result{ID: callID, Result: res})
		if encErr != nil {
			msg, encErr = json.Marshal(failure{ID: callID, Error: toRPCError(fmt.Errorf("encode result: %w", encErr))})
		}
	}
	if encErr != nil {
		slog.Error("channel response encoding failed", "channel", c.id, "call_id", callID, "error", encErr)
		return
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.postMu.Lock()
	c.mu.Unlock()
	defer c.postMu.Unlock()

	if err := c.transport.Post(msg); err != nil {
		slog.Warn("channel response not delivered", "channel", c.id, "call_id", callID, "error", err)
	}
}
