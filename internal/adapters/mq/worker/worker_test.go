package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/blindpair/internal/adapters/mq/queue"
	worker "github.com/okian/blindpair/internal/adapters/mq/worker"
	logging "github.com/okian/blindpair/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// recordingAnalyzer remembers which categories were analyzed.
type recordingAnalyzer struct {
	mu    sync.Mutex
	seen  []string
	fail  map[string]error
	block map[string]bool
	done  chan string
}

func newRecordingAnalyzer() *recordingAnalyzer {
	return &recordingAnalyzer{
		fail:  make(map[string]error),
		block: make(map[string]bool),
		done:  make(chan string, 64),
	}
}

func (a *recordingAnalyzer) Analyze(ctx context.Context, job worker.Job) error {
	a.mu.Lock()
	err, block := a.fail[job.CategoryID], a.block[job.CategoryID]
	a.mu.Unlock()

	defer func() { a.done <- job.CategoryID }()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.seen = append(a.seen, job.CategoryID)
	a.mu.Unlock()
	return nil
}

func (a *recordingAnalyzer) analyzed() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.seen...)
}

func waitFor(ch <-chan string, n int) bool {
	timeout := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-timeout:
			return false
		}
	}
	return true
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		analyzer := newRecordingAnalyzer()
		w := worker.NewInMemoryWorker(q, analyzer, worker.WithName("test-worker"), worker.WithJobTimeout(50*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a job is queued", func() {
			q.Enqueue(ctx, worker.Job{ID: "j1", CategoryID: "cat-1"})

			convey.Convey("Then the analyzer runs it", func() {
				convey.So(waitFor(analyzer.done, 1), convey.ShouldBeTrue)
				convey.So(analyzer.analyzed(), convey.ShouldResemble, []string{"cat-1"})
			})
		})

		convey.Convey("When a job fails", func() {
			analyzer.fail["bad"] = errors.New("boom")
			q.Enqueue(ctx, worker.Job{ID: "j1", CategoryID: "bad"})
			q.Enqueue(ctx, worker.Job{ID: "j2", CategoryID: "good"})

			convey.Convey("Then the worker keeps going", func() {
				convey.So(waitFor(analyzer.done, 2), convey.ShouldBeTrue)
				convey.So(analyzer.analyzed(), convey.ShouldResemble, []string{"good"})
			})
		})

		convey.Convey("When a job exceeds the timeout", func() {
			analyzer.block["slow"] = true
			q.Enqueue(ctx, worker.Job{ID: "j1", CategoryID: "slow"})
			q.Enqueue(ctx, worker.Job{ID: "j2", CategoryID: "fast"})

			convey.Convey("Then it is cancelled and the next job runs", func() {
				convey.So(waitFor(analyzer.done, 2), convey.ShouldBeTrue)
				convey.So(analyzer.analyzed(), convey.ShouldResemble, []string{"fast"})
			})
		})

		convey.Convey("When the worker is shut down", func() {
			err := w.Shutdown(context.Background())
			convey.So(err, convey.ShouldBeNil)
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of workers", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		analyzer := newRecordingAnalyzer()
		pool := worker.NewPool(4, q, analyzer)
		convey.So(pool.Size(), convey.ShouldEqual, 4)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.Convey("When many jobs are queued", func() {
			for i := 0; i < 20; i++ {
				convey.So(q.Enqueue(ctx, worker.Job{ID: "j", CategoryID: "cat"}), convey.ShouldBeTrue)
			}

			convey.Convey("Then all of them are processed and shutdown drains cleanly", func() {
				convey.So(waitFor(analyzer.done, 20), convey.ShouldBeTrue)
				convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
				convey.So(analyzer.analyzed(), convey.ShouldHaveLength, 20)
			})
		})

		convey.Convey("When the pool size is not positive", func() {
			p := worker.NewPool(0, queue.NewInMemoryQueue(), worker.AnalyzerFunc(func(context.Context, worker.Job) error { return nil }))
			convey.So(p.Size(), convey.ShouldBeGreaterThan, 0)
		})
	})
}
