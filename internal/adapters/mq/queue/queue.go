// Package queue defines the contract for enqueuing and consuming traffic
// samples headed for storage.
//
// Storage writes are the only blocking operations in the core, so location
// handling never waits on the database: samples are enqueued here and
// drained by the writer pool.
package queue

import (
	"context"
	"sync"

	"github.com/okian/gridlock/internal/domain/model"
	"github.com/okian/gridlock/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultCapacity = 10000
)

// Sample represents the payload type flowing through the queue.
type Sample = model.TrafficSample

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a sample to the queue.
	// Returns false if the queue is full and the sample was dropped.
	Enqueue(ctx context.Context, s Sample) bool

	// Dequeue returns a channel that receives samples as they become
	// available. The channel is closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Sample

	// Len returns the current number of queued samples.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue. After closing, no new samples
	// can be enqueued and the dequeue channel drains then closes.
	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	samples  chan Sample
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultCapacity,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.samples = make(chan Sample, q.capacity)

	metrics.UpdateSampleQueueSize(0)

	return q
}

// Enqueue adds a sample to the queue. Never blocks; a full queue drops the
// sample and reports false so the caller can log and move on.
func (q *InMemoryQueue) Enqueue(ctx context.Context, s Sample) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false
	}

	select {
	case q.samples <- s:
		metrics.UpdateSampleQueueSize(len(q.samples))
		return true
	case <-ctx.Done():
		return false
	default:
		return false
	}
}

// Dequeue returns a channel that receives samples as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Sample {
	out := make(chan Sample)
	go func() {
		defer close(out)
		for sample := range q.samples {
			select {
			case out <- sample:
				metrics.UpdateSampleQueueSize(len(q.samples))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued samples.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return len(q.samples)
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	close(q.samples)
	q.closed = true

	return nil
}
