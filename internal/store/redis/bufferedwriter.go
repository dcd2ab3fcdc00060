package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"chessvariants-server/internal/model"
)

// BufferedWriter wraps a Redis Writer with a circuit breaker. During
// circuit-open state, session commits are buffered locally (the
// Dispatcher has already validated the action; the commit must not be
// lost) and flushed in order once the circuit closes again.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer [][]byte // JSON-encoded model.Session, oldest first
	maxBuf int

	OnBuffer func()          // called when a commit is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered commits
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([][]byte, 0, 256),
		maxBuf: maxBufferSize,
	}

	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// CommitSession commits a session through the circuit breaker. If the
// circuit is open, the commit is buffered locally rather than dropped; the
// session remains readable from the caller's in-memory copy in the
// meantime, so no client-visible state is lost, only its durability window
// is extended.
func (bw *BufferedWriter) CommitSession(s *model.Session) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.CommitSession(bw.ctx, s)
	})
	if err == ErrCircuitOpen {
		bw.bufferCommit(s)
		return nil
	}
	return err
}

func (bw *BufferedWriter) bufferCommit(s *model.Session) {
	data, err := json.Marshal(s)
	if err != nil {
		log.Printf("[buffered-writer] marshal error for session %s: %v", s.ID, err)
		return
	}

	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, data)

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered commits through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([][]byte, 0, 256)
	bw.mu.Unlock()

	flushed := 0
	for _, data := range toFlush {
		var s model.Session
		if json.Unmarshal(data, &s) == nil {
			bw.writer.CommitSession(bw.ctx, &s)
		}
		flushed++
	}

	log.Printf("[buffered-writer] flushed %d buffered session commits", flushed)
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered commits waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Underlying returns the wrapped Writer for direct access.
func (bw *BufferedWriter) Underlying() *Writer {
	return bw.writer
}
