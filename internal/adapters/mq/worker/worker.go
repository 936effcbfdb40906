// Package worker drains the sample queue into the storage collaborator.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/gridlock/internal/adapters/mq/queue"
	"github.com/okian/gridlock/internal/domain/model"
	"github.com/okian/gridlock/pkg/logger"
	"github.com/okian/gridlock/pkg/metrics"
)

// Default worker configuration constants.
const (
	workerShutdownTimeout = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Inserter persists one traffic sample.
type Inserter interface {
	InsertSample(ctx context.Context, sample model.TrafficSample) error
}

// Writer consumes queued samples and writes them to storage.
type Writer struct {
	queue    queue.Queue
	inserter Inserter
	name     string

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	// Logging
	logger logger.Logger
}

// NewWriter creates a new sample writer with configuration options.
func NewWriter(q queue.Queue, inserter Inserter, opts ...Option) *Writer {
	w := &Writer{
		queue:    q,
		inserter: inserter,
		name:     "sample-writer",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("sample-writer"),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Run starts the writer loop.
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)

	samples := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case sample, ok := <-samples:
			if !ok {
				return
			}

			if err := w.inserter.InsertSample(ctx, sample); err != nil {
				// A failed sample write is an isolated unit of work:
				// log it, count it, keep draining.
				metrics.RecordStorageError("insert_sample")
				w.logger.Error(ctx, "traffic sample write failed",
					logger.String("source_id", sample.SourceID),
					logger.Error(err),
				)
				continue
			}
			metrics.RecordSampleWritten()
		}
	}
}

// Shutdown gracefully stops the writer.
func (w *Writer) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Pool manages multiple writers draining the same queue.
type Pool struct {
	writers []*Writer
	queue   queue.Queue

	logger logger.Logger
}

// NewPool creates a new writer pool.
func NewPool(writerCount int, q queue.Queue, inserter Inserter) *Pool {
	if writerCount < 1 {
		writerCount = runtime.NumCPU()
	}

	pool := &Pool{
		writers: make([]*Writer, writerCount),
		queue:   q,
		logger:  logger.Get().Named("writer-pool"),
	}

	for i := 0; i < writerCount; i++ {
		pool.writers[i] = NewWriter(
			q,
			inserter,
			WithName("sample-writer-"+strconv.Itoa(i)),
		)
	}

	return pool
}

// Start starts all writers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, writer := range p.writers {
		go writer.Run(ctx)
	}
}

// Stop closes the queue and waits for the writers to drain.
func (p *Pool) Stop() {
	if err := p.queue.Close(); err != nil {
		p.logger.Error(context.Background(), "error closing sample queue", logger.Error(err))
	}

	for _, writer := range p.writers {
		select {
		case <-writer.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
}

// Shutdown gracefully shuts down the pool with a bounded wait.
func (p *Pool) Shutdown(ctx context.Context) error {
	if err := p.queue.Close(); err != nil {
		p.logger.Error(ctx, "error closing sample queue", logger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, writer := range p.writers {
		select {
		case <-writer.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "sample writer shutdown timed out", logger.Int("writer_id", i))
		}
	}

	return nil
}
