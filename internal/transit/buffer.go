// Package transit carries finished segments from the producer to the
// playback scheduler through a small bounded buffer. The buffer is the
// pipeline's sole backpressure point: a full buffer blocks production
// so synthesis never runs far ahead of playback.
package transit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/papervoice/internal/segment"
)

var (
	// ErrClosed is returned when operations are attempted on a closed buffer.
	ErrClosed = errors.New("transit buffer closed")

	// ErrTimeout is returned by Get when no segment arrived in time.
	// Callers use the timeout to re-check stop conditions.
	ErrTimeout = errors.New("transit buffer get timed out")
)

// Buffer is a bounded FIFO of segments. Capacity is fixed at
// construction; Put blocks while full and Get blocks up to a timeout
// while empty.
type Buffer struct {
	ch   chan *segment.Segment
	done chan struct{}

	closeOnce sync.Once

	// Metrics
	puts atomic.Int64
	gets atomic.Int64
}

// NewBuffer creates a buffer with the given capacity. Capacities
// outside 1-16 are clamped; the pipeline configures 2-5 in practice.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	if capacity > 16 {
		capacity = 16
	}
	return &Buffer{
		ch:   make(chan *segment.Segment, capacity),
		done: make(chan struct{}),
	}
}

// Put enqueues a segment, blocking while the buffer is full. It returns
// early if ctx is cancelled or the buffer is closed.
func (b *Buffer) Put(ctx context.Context, seg *segment.Segment) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}

	select {
	case b.ch <- seg:
		b.puts.Add(1)
		return nil
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get dequeues the next segment, waiting up to timeout. On timeout it
// returns ErrTimeout so the caller can re-check its stop flag. After
// Close, buffered segments are still delivered before ErrClosed.
func (b *Buffer) Get(timeout time.Duration) (*segment.Segment, error) {
	// Deliver buffered segments even when the buffer is already closed.
	select {
	case seg := <-b.ch:
		b.gets.Add(1)
		return seg, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case seg := <-b.ch:
		b.gets.Add(1)
		return seg, nil
	case <-b.done:
		return nil, ErrClosed
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// Len returns the number of buffered segments.
func (b *Buffer) Len() int {
	return len(b.ch)
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return cap(b.ch)
}

// Drain discards all buffered segments and returns how many were dropped.
func (b *Buffer) Drain() int {
	dropped := 0
	for {
		select {
		case <-b.ch:
			dropped++
		default:
			return dropped
		}
	}
}

// Close releases blocked producers and consumers with ErrClosed.
// Buffered segments remain readable via Get or Drain. Idempotent.
func (b *Buffer) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}
