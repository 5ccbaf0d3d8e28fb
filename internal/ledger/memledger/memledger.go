// Package memledger is an in-memory ledger.Store for tests. The working copy
// is a real directory so generators and mailers can read and write files;
// HEAD and the remote are in-memory snapshots.
package memledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/jkpraja/genMJP/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

// ErrRejected simulates a non-fast-forward push.
var ErrRejected = errors.New("push rejected: fetch first")

// Commit is one recorded local commit.
type Commit struct {
	Message string
	Files   []string
}

// Store is safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	dir        string
	head       map[string][]byte
	remote     map[string][]byte
	ahead      int
	commits    []Commit
	pushes     int
	rebases    int
	failPush   int
	failRebase int
}

// New returns a store whose working copy is dir.
func New(dir string) *Store {
	return &Store{
		dir:    dir,
		head:   make(map[string][]byte),
		remote: make(map[string][]byte),
	}
}

// FailPushes makes the next n push attempts fail.
func (s *Store) FailPushes(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPush = n
}

// FailRebases makes the next n rebase attempts fail.
func (s *Store) FailRebases(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRebase = n
}

// PushExternal simulates another writer pushing name to the remote.
func (s *Store) PushExternal(name string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote[name] = append([]byte(nil), content...)
}

// Commits returns a copy of the local commit log.
func (s *Store) Commits() []Commit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Commit(nil), s.commits...)
}

// OnRemote reports whether name has been pushed.
func (s *Store) OnRemote(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.remote[name]
	return ok
}

// Pushes counts push attempts, successful or not.
func (s *Store) Pushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushes
}

// Rebases counts rebase attempts.
func (s *Store) Rebases() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebases
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) Path(name string) string { return filepath.Join(s.dir, name) }

func (s *Store) Exists(name string) (bool, error) {
	_, err := os.Stat(s.Path(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *Store) Touch(name string) error {
	f, err := os.OpenFile(s.Path(name), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func (s *Store) Commit(ctx context.Context, names []string, message string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	staged := make(map[string][]byte)
	for _, name := range names {
		data, err := os.ReadFile(s.Path(name))
		if err != nil {
			return false, fmt.Errorf("stage %s: %w", name, err)
		}
		if prev, ok := s.head[name]; ok && bytes.Equal(prev, data) {
			continue
		}
		staged[name] = data
		changed = append(changed, name)
	}
	if len(changed) == 0 {
		return false, nil
	}
	maps.Copy(s.head, staged)
	s.ahead++
	s.commits = append(s.commits, Commit{Message: message, Files: changed})
	return true, nil
}

func (s *Store) Push(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pushes++
	if s.failPush > 0 {
		s.failPush--
		return ErrRejected
	}
	// A remote that moved on since our last rebase rejects the push.
	for name := range s.remote {
		if _, ok := s.head[name]; !ok {
			return ErrRejected
		}
	}
	maps.Copy(s.remote, s.head)
	s.ahead = 0
	return nil
}

func (s *Store) Rebase(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rebases++
	if s.failRebase > 0 {
		s.failRebase--
		return errors.New("rebase conflict")
	}
	for name, data := range s.remote {
		if _, ok := s.head[name]; ok {
			continue
		}
		s.head[name] = data
		if err := os.WriteFile(s.Path(name), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Uncommitted(ctx context.Context, patterns ...string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !matchAny(e.Name(), patterns) {
			continue
		}
		data, err := os.ReadFile(s.Path(e.Name()))
		if err != nil {
			return nil, err
		}
		if prev, ok := s.head[e.Name()]; ok && bytes.Equal(prev, data) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Ahead(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ahead, nil
}

func matchAny(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}
