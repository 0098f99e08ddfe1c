package channel

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Compile-time interface check.
var _ Transport = (*StreamTransport)(nil)

// MaxFrameSize bounds a single newline-delimited message.
const MaxFrameSize = 16 << 20

// StreamTransport carries newline-delimited JSON messages over a byte stream,
// typically the stdin/stdout pipes of a sandboxed subprocess.
//
// Thread-safety: Post and Subscribe are safe from any goroutine. Run must be
// called from exactly one goroutine.
type StreamTransport struct {
	r io.Reader

	writeMu sync.Mutex
	w       io.Writer

	subs listeners
}

// NewStreamTransport creates a transport reading peer messages from r and
// writing host messages to w.
func NewStreamTransport(r io.Reader, w io.Writer) *StreamTransport {
	return &StreamTransport{r: r, w: w}
}

// Post writes one message followed by a newline. Messages produced by
// encoding/json never contain a raw newline.
func (t *StreamTransport) Post(data []byte) error {
	if bytes.IndexByte(data, '\n') >= 0 {
		return fmt.Errorf("stream transport: message contains newline")
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, data...)
	buf = append(buf, '\n')
	if _, err := t.w.Write(buf); err != nil {
		return fmt.Errorf("stream transport: write: %w", err)
	}
	return nil
}

// Subscribe registers a listener for inbound messages.
func (t *StreamTransport) Subscribe(fn func([]byte)) func() {
	return t.subs.add(fn)
}

// Run reads inbound messages until the stream ends or ctx is cancelled.
// Returns nil on a clean end of stream.
func (t *StreamTransport) Run(ctx context.Context) error {
	lines := make(chan []byte)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		reader := bufio.NewReaderSize(t.r, 64<<10)
		for {
			line, err := readFrame(reader)
			if len(line) > 0 {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					errc <- err
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return fmt.Errorf("stream transport: read: %w", err)
				default:
					return nil
				}
			}
			t.subs.deliver(line)
		}
	}
}

// readFrame returns the next non-empty line without its terminator.
func readFrame(r *bufio.Reader) ([]byte, error) {
	var frame []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		frame = append(frame, chunk...)
		if len(frame) > MaxFrameSize {
			return nil, fmt.Errorf("frame exceeds %d bytes", MaxFrameSize)
		}
		if err != nil {
			return frame, err
		}
		if !isPrefix {
			if len(bytes.TrimSpace(frame)) == 0 {
				frame = frame[:0]
				continue
			}
			return frame, nil
		}
	}
}
