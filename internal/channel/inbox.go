package channel

import "sync"

// inbox is a thread-safe FIFO of host → peer calls.
//
// The queue is unbounded so a transport listener never blocks on a slow
// consumer. A buffered signal channel of size 1 coalesces wake-ups and lets
// consumers wait with select alongside a context.
type inbox struct {
	mu     sync.Mutex
	calls  []Call
	closed bool
	signal chan struct{}
}

func newInbox() *inbox {
	return &inbox{
		calls:  make([]Call, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// push appends a call. Returns false once the inbox is closed.
func (q *inbox) push(c Call) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.calls = append(q.calls, c)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// tryPop removes the front call without blocking.
func (q *inbox) tryPop() (Call, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.calls) == 0 {
		return Call{}, false
	}
	c := q.calls[0]
	// Clear the slot so the backing array does not pin params.
	q.calls[0] = Call{}
	if len(q.calls) == 1 {
		q.calls = q.calls[:0]
	} else {
		q.calls = q.calls[1:]
	}
	return c, true
}

// wait returns a channel that fires when calls may be available.
// It is closed when the inbox closes.
func (q *inbox) wait() <-chan struct{} {
	return q.signal
}

func (q *inbox) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *inbox) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.calls)
}

func (q *inbox) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
