package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jkpraja/genMJP/internal/types"
)

func newTestRun(lane string, kind types.TriggerKind) *Run {
	return NewRun(types.LaneKey(lane), kind, time.Now())
}

func TestQueueSingleSlotNeverOverlaps(t *testing.T) {
	queue := NewQueue(1)
	queue.Start(context.Background())
	defer queue.Stop()

	var running, maxSeen int32
	queue.SetProcessor(func(run *Run) error {
		current := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&maxSeen)
			if current <= old || atomic.CompareAndSwapInt32(&maxSeen, old, current) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	})

	runs := make([]*Run, 5)
	for i := range runs {
		runs[i] = newTestRun("pipeline:genmjp", types.TriggerScheduled)
		if err := queue.Enqueue(runs[i]); err != nil {
			t.Fatal(err)
		}
	}
	for _, r := range runs {
		if err := r.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
		if r.Status != RunStatusComplete {
			t.Errorf("expected complete, got %s", r.Status)
		}
	}
	if m := atomic.LoadInt32(&maxSeen); m != 1 {
		t.Errorf("expected exactly 1 concurrent run, saw %d", m)
	}
}

func TestQueueFIFOOrdering(t *testing.T) {
	queue := NewQueue(1)
	queue.Start(context.Background())
	defer queue.Stop()

	var mu sync.Mutex
	var order []types.RunID
	release := make(chan struct{})
	queue.SetProcessor(func(run *Run) error {
		<-release
		mu.Lock()
		order = append(order, run.ID)
		mu.Unlock()
		return nil
	})

	var runs []*Run
	for i := 0; i < 3; i++ {
		r := newTestRun("pipeline:genmjp", types.TriggerManual)
		runs = append(runs, r)
		if err := queue.Enqueue(r); err != nil {
			t.Fatal(err)
		}
	}
	close(release)
	for _, r := range runs {
		r.Wait(context.Background())
	}

	mu.Lock()
	defer mu.Unlock()
	for i, r := range runs {
		if order[i] != r.ID {
			t.Errorf("position %d: expected %s, got %s", i, r.ID, order[i])
		}
	}
}

func TestQueueFailedAndCancelledStatus(t *testing.T) {
	queue := NewQueue(1)
	queue.Start(context.Background())
	defer queue.Stop()

	queue.SetProcessor(func(run *Run) error {
		if run.Kind == types.TriggerManual {
			return errors.New("push failed")
		}
		return context.Canceled
	})

	failed := newTestRun("l", types.TriggerManual)
	cancelled := newTestRun("l", types.TriggerScheduled)
	queue.Enqueue(failed)
	queue.Enqueue(cancelled)

	if err := failed.Wait(context.Background()); err == nil || failed.Status != RunStatusFailed {
		t.Errorf("expected failed run, got %s (%v)", failed.Status, err)
	}
	cancelled.Wait(context.Background())
	if cancelled.Status != RunStatusCancelled {
		t.Errorf("expected cancelled run, got %s", cancelled.Status)
	}
	if failed.StartedAt == nil || failed.EndedAt == nil {
		t.Error("expected start and end times")
	}
}

func TestQueueStopFinishesWaitingRuns(t *testing.T) {
	queue := NewQueue(1)
	queue.Start(context.Background())

	started := make(chan struct{})
	queue.SetProcessor(func(run *Run) error {
		close(started)
		<-run.Ctx.Done()
		return run.Ctx.Err()
	})

	first := newTestRun("l", types.TriggerScheduled)
	second := newTestRun("l", types.TriggerScheduled)
	queue.Enqueue(first)
	queue.Enqueue(second)
	<-started

	queue.Stop()

	for _, r := range []*Run{first, second} {
		select {
		case <-r.Done():
		default:
			t.Fatalf("run %s not finished after Stop", r.ID)
		}
		if r.Status != RunStatusCancelled {
			t.Errorf("expected cancelled, got %s", r.Status)
		}
	}
	if err := queue.Enqueue(newTestRun("l", types.TriggerManual)); err == nil {
		t.Error("expected enqueue after Stop to fail")
	}
}

func TestQueueWaitIdleAndStats(t *testing.T) {
	queue := NewQueue(1)
	queue.Start(context.Background())
	defer queue.Stop()

	release := make(chan struct{})
	queue.SetProcessor(func(run *Run) error {
		<-release
		return nil
	})

	queue.Enqueue(newTestRun("l", types.TriggerScheduled))
	queue.Enqueue(newTestRun("l", types.TriggerScheduled))
	time.Sleep(50 * time.Millisecond)

	active, queued := queue.Stats()
	if active != 1 || queued != 1 {
		t.Errorf("expected 1 active and 1 queued, got %d/%d", active, queued)
	}
	if queue.WaitIdle(50 * time.Millisecond) {
		t.Error("queue should not be idle while a run blocks")
	}
	close(release)
	if !queue.WaitIdle(2 * time.Second) {
		t.Error("queue should become idle")
	}
}

func TestQueueNoProcessor(t *testing.T) {
	queue := NewQueue(1)
	queue.Start(context.Background())
	defer queue.Stop()

	run := newTestRun("no-proc", types.TriggerManual)
	if err := queue.Enqueue(run); err != nil {
		t.Fatal(err)
	}
	if err := run.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
}
