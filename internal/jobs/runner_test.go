package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/gridlock/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func TestRunnerTicks(t *testing.T) {
	convey.Convey("Given a runner on a mock clock", t, func() {
		mock := quartz.NewMock(t)
		trap := mock.Trap().TickerFunc("cleanup")
		defer trap.Close()

		var runs atomic.Int64
		r := New("cleanup", time.Minute, func(context.Context) error {
			runs.Add(1)
			return nil
		}, WithClock(mock))

		ctx, cancel := context.WithCancel(context.Background())
		var runErr error
		done := make(chan struct{})
		go func() {
			runErr = r.Run(ctx)
			close(done)
		}()

		trap.MustWait(ctx).Release()

		convey.Convey("When the interval elapses twice", func() {
			mock.Advance(time.Minute).MustWait(ctx)
			mock.Advance(time.Minute).MustWait(ctx)

			convey.Convey("Then the job ran once per tick", func() {
				convey.So(runs.Load(), convey.ShouldEqual, 2)
			})

			convey.Convey("And cancelling the context stops the loop cleanly", func() {
				cancel()
				<-done
				convey.So(runErr, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the job fails", func() {
			failing := New("flaky", time.Minute, func(context.Context) error {
				return errors.New("cycle failed")
			}, WithClock(quartz.NewReal()))

			convey.Convey("Then a direct tick swallows the error and keeps the schedule", func() {
				convey.So(func() { failing.tick(context.Background()) }, convey.ShouldNotPanic)
			})
		})

		cancel()
		<-done
	})
}

func TestRunnerSkipsOverlappingTicks(t *testing.T) {
	convey.Convey("Given a job that is still in flight", t, func() {
		var skips atomic.Int64
		release := make(chan struct{})
		started := make(chan struct{})

		r := New("slow", time.Minute, func(context.Context) error {
			close(started)
			<-release
			return nil
		}, WithOnSkip(func() { skips.Add(1) }))

		go r.tick(context.Background())
		<-started

		convey.Convey("When another tick fires", func() {
			r.tick(context.Background())

			convey.Convey("Then it is skipped and counted", func() {
				convey.So(skips.Load(), convey.ShouldEqual, 1)
			})
		})

		close(release)
	})
}
