package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// Lock is an exclusive advisory lock on a file, shared by every genmjp
// process using the same data dir.
type Lock struct {
	path string
	f    *os.File
}

// ErrLocked is returned by TryAcquire when another process holds the lock.
var ErrLocked = errors.New("lock held by another process")

func NewLock(path string) *Lock {
	return &Lock{path: path}
}

func (l *Lock) Path() string { return l.path }

// TryAcquire takes the lock without waiting.
func (l *Lock) TryAcquire() error {
	if l.f != nil {
		return fmt.Errorf("lock %s already acquired", l.path)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open lock: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return ErrLocked
		}
		return fmt.Errorf("flock %s: %w", l.path, err)
	}
	f.Truncate(0)
	fmt.Fprintf(f, "%d\n", os.Getpid())
	l.f = f
	return nil
}

// Acquire waits until the lock is free or ctx ends. A concurrent
// invocation therefore queues behind the running one instead of being
// dropped.
func (l *Lock) Acquire(ctx context.Context, poll time.Duration) error {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	for {
		err := l.TryAcquire()
		if !errors.Is(err, ErrLocked) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

// Release drops the lock. The file stays in place for the next holder.
func (l *Lock) Release() error {
	if l.f == nil {
		return nil
	}
	err := syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
