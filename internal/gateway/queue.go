package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jkpraja/genMJP/internal/types"
)

// laneCapacity bounds how many runs may wait in one lane.
const laneCapacity = 100

// Queue holds one FIFO lane per key and a semaphore shared by all lanes.
// Runs in a lane are processed strictly one after another; the semaphore
// caps how many lanes may be busy at once.
type Queue struct {
	lanes     map[types.LaneKey]chan *Run
	semaphore *semaphore.Weighted
	processor func(*Run) error
	active    atomic.Int64
	queued    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func NewQueue(maxConcurrent int64) *Queue {
	return &Queue{
		lanes:     make(map[types.LaneKey]chan *Run),
		semaphore: semaphore.NewWeighted(maxConcurrent),
	}
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context, closes all lanes and waits for lane
// workers to finish. Runs still waiting are finished as cancelled.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		for _, lane := range q.lanes {
			close(lane)
		}
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue appends run to its lane, starting the lane worker on first use.
// It fails only when the lane is full or the queue is stopped.
func (q *Queue) Enqueue(run *Run) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.ctx == nil || q.ctx.Err() != nil {
		return fmt.Errorf("queue is not running")
	}

	lane, exists := q.lanes[run.Lane]
	if !exists {
		lane = make(chan *Run, laneCapacity)
		q.lanes[run.Lane] = lane
		q.wg.Add(1)
		go q.processLane(run.Lane, lane)
	}

	select {
	case lane <- run:
		q.queued.Add(1)
		return nil
	default:
		return fmt.Errorf("queue full for lane %s", run.Lane)
	}
}

func (q *Queue) processLane(key types.LaneKey, lane chan *Run) {
	defer q.wg.Done()
	for {
		select {
		case run, ok := <-lane:
			if !ok {
				return
			}
			q.queued.Add(-1)
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				run.finish(err)
				q.drain(lane)
				return
			}
			q.process(key, run)
			q.semaphore.Release(1)
		case <-q.ctx.Done():
			q.drain(lane)
			return
		}
	}
}

func (q *Queue) process(key types.LaneKey, run *Run) {
	q.active.Add(1)
	defer q.active.Add(-1)

	run.start(q.ctx)
	var err error
	if q.processor != nil {
		err = q.processor(run)
	}
	if err != nil {
		slog.Error("run failed", "run_id", string(run.ID), "lane", string(key), "kind", string(run.Kind), "error", err)
	}
	run.finish(err)
}

// drain finishes every run still waiting in lane as cancelled. The lane is
// closed by Stop, so the loop ends once it is empty.
func (q *Queue) drain(lane chan *Run) {
	for {
		select {
		case run, ok := <-lane:
			if !ok {
				return
			}
			q.queued.Add(-1)
			run.finish(context.Canceled)
		default:
			return
		}
	}
}

// WaitIdle blocks until no runs are active or queued, or the timeout
// expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.active.Load() == 0 && q.queued.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Stats reports how many runs are processing and how many are waiting.
func (q *Queue) Stats() (active, queued int64) {
	return q.active.Load(), q.queued.Load()
}

// SetProcessor sets the function invoked for each dequeued Run.
func (q *Queue) SetProcessor(fn func(*Run) error) {
	q.processor = fn
}
