package upstream

import (
	"io"
	"sync"
)

// DroppableStream wraps an upstream response body so a stream can be
// abandoned mid-frame. Dropping closes the body, which aborts the
// underlying HTTP connection; this is the only supported way to
// terminate a stream early.
type DroppableStream struct {
	body io.ReadCloser

	mu      sync.Mutex
	dropped bool
}

// DropHandle signals the stream to abort. It is safe to call from any
// goroutine and more than once.
type DropHandle struct {
	s *DroppableStream
}

func NewDroppableStream(body io.ReadCloser) (*DroppableStream, DropHandle) {
	s := &DroppableStream{body: body}
	return s, DropHandle{s: s}
}

// Read forwards to the body; after a drop it reports EOF.
func (s *DroppableStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	dropped := s.dropped
	s.mu.Unlock()
	if dropped {
		return 0, io.EOF
	}
	return s.body.Read(p)
}

// Close releases the upstream connection. Idempotent.
func (s *DroppableStream) Close() error {
	s.mu.Lock()
	if s.dropped {
		s.mu.Unlock()
		return nil
	}
	s.dropped = true
	s.mu.Unlock()
	return s.body.Close()
}

// Drop aborts the stream.
func (h DropHandle) Drop() {
	if h.s != nil {
		h.s.Close() //nolint:errcheck
	}
}
