package channel

import (
	"errors"
	"slices"
	"sync"
)

// Compile-time interface checks.
var (
	_ Transport = (*frameHost)(nil)
	_ Transport = (*framePeer)(nil)
)

// ErrFrameClosed is returned when posting into a closed frame.
var ErrFrameClosed = errors.New("channel: frame closed")

// MemoryBus is an in-process stand-in for a host window: one inbound message
// bus shared by every sandboxed frame it hosts. Messages are copied on every
// hop, so the two sides never share memory.
type MemoryBus struct {
	hub listeners
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Frame mounts a new sandboxed frame on the bus and returns both ends.
// host posts into the frame and listens on the shared bus; peer posts onto
// the shared bus and listens on the frame.
func (b *MemoryBus) Frame() (host Transport, peer Transport, closeFrame func()) {
	f := &frame{bus: b}
	return &frameHost{f}, &framePeer{f}, f.close
}

// Publish delivers data to every bus listener.
func (b *MemoryBus) Publish(data []byte) {
	b.hub.deliver(data)
}

type frame struct {
	bus    *MemoryBus
	inbox  listeners
	mu     sync.Mutex
	closed bool
}

func (f *frame) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *frame) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type frameHost struct{ f *frame }

func (h *frameHost) Post(data []byte) error {
	if h.f.isClosed() {
		return ErrFrameClosed
	}
	h.f.inbox.deliver(data)
	return nil
}

func (h *frameHost) Subscribe(fn func([]byte)) func() {
	return h.f.bus.hub.add(fn)
}

type framePeer struct{ f *frame }

func (p *framePeer) Post(data []byte) error {
	if p.f.isClosed() {
		return ErrFrameClosed
	}
	p.f.bus.hub.deliver(data)
	return nil
}

func (p *framePeer) Subscribe(fn func([]byte)) func() {
	return p.f.inbox.add(fn)
}

// listeners is a copy-on-deliver fan-out list.
type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func([]byte)
}

func (l *listeners) add(fn func([]byte)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func([]byte))
	}
	id := l.next
	l.next++
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.fns, id)
		})
	}
}

// deliver calls every listener, in registration order, with its own copy.
func (l *listeners) deliver(data []byte) {
	l.mu.Lock()
	ids := make([]int, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	fns := make([]func([]byte), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, l.fns[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		cp := make([]byte, len(data))
		copy(cp, data)
		fn(cp)
	}
}

func (l *listeners) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}

// Listeners returns the number of host listeners attached to the bus.
func (b *MemoryBus) Listeners() int {
	return b.hub.len()
}
