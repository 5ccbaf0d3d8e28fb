package gateway

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestLockExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "genmjp.lock")
	a := NewLock(path)
	b := NewLock(path)

	if err := a.TryAcquire(); err != nil {
		t.Fatal(err)
	}
	if err := b.TryAcquire(); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Errorf("expected pid in lock file, got %q", data)
	}

	if err := a.Release(); err != nil {
		t.Fatal(err)
	}
	if err := b.TryAcquire(); err != nil {
		t.Fatalf("expected lock to be free after release: %v", err)
	}
	b.Release()
}

func TestLockAcquireWaits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genmjp.lock")
	holder := NewLock(path)
	if err := holder.TryAcquire(); err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		holder.Release()
	}()

	waiter := NewLock(path)
	start := time.Now()
	if err := waiter.Acquire(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	defer waiter.Release()
	if time.Since(start) < 50*time.Millisecond {
		t.Error("Acquire returned before the holder released")
	}
}

func TestLockAcquireCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genmjp.lock")
	holder := NewLock(path)
	if err := holder.TryAcquire(); err != nil {
		t.Fatal(err)
	}
	defer holder.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := NewLock(path).Acquire(ctx, 10*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestLockReleaseWithoutAcquire(t *testing.T) {
	if err := NewLock(filepath.Join(t.TempDir(), "x.lock")).Release(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
