// Package jobs runs the periodic maintenance loops: the session janitor and
// the congestion recompute cycle.
package jobs

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"

	"github.com/okian/gridlock/pkg/logger"
)

// Job is one unit of periodic work.
type Job func(ctx context.Context) error

// Runner executes a job on a fixed interval. Runs never overlap: if a tick
// fires while the previous run is still in flight, that tick is skipped.
type Runner struct {
	name     string
	interval time.Duration
	job      Job

	running atomic.Bool
	onSkip  func()
	clock   quartz.Clock
	logger  logger.Logger
}

// Option applies a configuration option to the Runner.
type Option func(*Runner)

// WithClock sets the clock driving the ticker.
func WithClock(clock quartz.Clock) Option {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithOnSkip registers a callback invoked whenever a tick is skipped
// because the previous run has not finished.
func WithOnSkip(f func()) Option {
	return func(r *Runner) {
		if f != nil {
			r.onSkip = f
		}
	}
}

// WithLogger sets a custom logger for the runner.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a runner for the named job.
func New(name string, interval time.Duration, job Job, opts ...Option) *Runner {
	r := &Runner{
		name:     name,
		interval: interval,
		job:      job,
		clock:    quartz.NewReal(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = logger.Get().Named("jobs." + name)
	}

	return r
}

// Run blocks, executing the job every interval until ctx is cancelled. Job
// errors are logged and the loop keeps going; a failing cycle must never
// kill the schedule.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info(ctx, "periodic job started",
		logger.String("job", r.name),
		logger.Duration("interval", r.interval),
	)

	waiter := r.clock.TickerFunc(ctx, r.interval, func() error {
		r.tick(ctx)
		return nil
	}, r.name)

	err := waiter.Wait()
	if err != nil && ctx.Err() != nil {
		err = nil
	}

	r.logger.Info(context.Background(), "periodic job stopped", logger.String("job", r.name))
	return err
}

// tick runs one cycle, enforcing the non-overlap guarantee.
func (r *Runner) tick(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		if r.onSkip != nil {
			r.onSkip()
		}
		r.logger.Warn(ctx, "previous run still in flight, skipping tick",
			logger.String("job", r.name))
		return
	}
	defer r.running.Store(false)

	if err := r.job(ctx); err != nil {
		r.logger.Error(ctx, "periodic job failed",
			logger.String("job", r.name),
			logger.Error(err),
		)
	}
}
