// internal/scheduler/scheduler_test.go
package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerFires(t *testing.T) {
	var fires atomic.Int32
	sched := New("* * * * * *", time.UTC, func() { fires.Add(1) })
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	deadline := time.After(2500 * time.Millisecond)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			t.Fatalf("handler did not fire within 2.5s, fires=%d", fires.Load())
		case <-ticker.C:
			if fires.Load() > 0 {
				return
			}
		}
	}
}

func TestSchedulerInvalidSpec(t *testing.T) {
	sched := New("not a schedule", time.UTC, func() {})
	if err := sched.Start(); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestSchedulerNextInLocation(t *testing.T) {
	bangkok, err := time.LoadLocation("Asia/Bangkok")
	if err != nil {
		t.Skip("tzdata not available")
	}
	sched := New("", bangkok, func() {})
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	<-sched.Stop().Done()

	next := sched.Next()
	if next.IsZero() {
		t.Fatal("expected next tick")
	}
	if m := next.In(bangkok).Minute(); m != 0 && m != 30 {
		t.Errorf("default schedule should tick on :00 or :30, got minute %d", m)
	}
}

func TestParse(t *testing.T) {
	for _, spec := range []string{"*/30 * * * *", "0 */30 * * * *", "@hourly"} {
		if _, err := Parse(spec); err != nil {
			t.Errorf("Parse(%q): %v", spec, err)
		}
	}
	if _, err := Parse("61 * * * *"); err == nil {
		t.Error("expected error for minute 61")
	}
}

func TestStopBeforeStart(t *testing.T) {
	ctx := New("", time.UTC, func() {}).Stop()
	select {
	case <-ctx.Done():
	default:
		t.Error("Stop before Start should return a done context")
	}
}
