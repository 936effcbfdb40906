package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/gridlock/internal/adapters/mq/queue"
	"github.com/okian/gridlock/internal/domain/model"
	"github.com/okian/gridlock/pkg/logger"
)

func init() {
	_ = logger.Init()
}

// recordingInserter captures written samples and can fail on demand.
type recordingInserter struct {
	mu      sync.Mutex
	written []model.TrafficSample
	failOn  float64
}

func (r *recordingInserter) InsertSample(_ context.Context, sample model.TrafficSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failOn != 0 && sample.SpeedKmh == r.failOn {
		return errors.New("insert failed")
	}
	r.written = append(r.written, sample)
	return nil
}

func (r *recordingInserter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.written)
}

func sample(speed float64) queue.Sample {
	return queue.Sample{
		Location:  model.LatLng{Lat: 51.505, Lng: -0.125},
		SpeedKmh:  speed,
		Timestamp: time.Now(),
		SourceID:  "conn-1",
	}
}

func waitFor(check func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return check()
}

func TestWriterDrainsQueue(t *testing.T) {
	convey.Convey("Given a writer on a queue", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		inserter := &recordingInserter{}
		w := NewWriter(q, inserter, WithName("test-writer"))

		go w.Run(ctx)

		convey.Convey("When samples are enqueued", func() {
			convey.So(q.Enqueue(ctx, sample(10)), convey.ShouldBeTrue)
			convey.So(q.Enqueue(ctx, sample(20)), convey.ShouldBeTrue)

			convey.Convey("Then they reach storage", func() {
				convey.So(waitFor(func() bool { return inserter.count() == 2 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When one write fails", func() {
			inserter.failOn = 20
			convey.So(q.Enqueue(ctx, sample(10)), convey.ShouldBeTrue)
			convey.So(q.Enqueue(ctx, sample(20)), convey.ShouldBeTrue)
			convey.So(q.Enqueue(ctx, sample(30)), convey.ShouldBeTrue)

			convey.Convey("Then the writer keeps draining past the failure", func() {
				convey.So(waitFor(func() bool { return inserter.count() == 2 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the writer is shut down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()
			convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
		})
	})
}

func TestPoolLifecycle(t *testing.T) {
	convey.Convey("Given a pool of writers", t, func() {
		ctx := context.Background()

		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		inserter := &recordingInserter{}
		pool := NewPool(3, q, inserter)

		pool.Start(ctx)

		convey.Convey("When samples are enqueued and the pool stops", func() {
			for i := 0; i < 20; i++ {
				convey.So(q.Enqueue(ctx, sample(float64(i+1))), convey.ShouldBeTrue)
			}

			pool.Stop()

			convey.Convey("Then every sample was written exactly once", func() {
				convey.So(inserter.count(), convey.ShouldEqual, 20)
			})
		})
	})
}
