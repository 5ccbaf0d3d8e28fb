// internal/state/runs.go
package state

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jkpraja/genMJP/internal/types"
)

// ErrRunNotFound is returned by Get for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// RunStore is a JSONL-backed append-only journal of finished runs, stored in
// <root>/runs.jsonl.
type RunStore struct {
	path string
	mu   sync.Mutex
}

func NewRunStore(root string) *RunStore {
	return &RunStore{path: filepath.Join(root, "runs.jsonl")}
}

func (s *RunStore) Path() string { return s.path }

// Append writes rec as one line.
func (s *RunStore) Append(_ context.Context, rec *types.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// read decodes every record. Caller must hold the lock.
func (s *RunStore) read() ([]*types.RunRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var recs []*types.RunRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec types.RunRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal run: %w", err)
		}
		recs = append(recs, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	return recs, nil
}

// Tail returns the last limit records, oldest first. limit <= 0 returns all.
func (s *RunStore) Tail(_ context.Context, limit int) ([]*types.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.read()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	return recs, nil
}

// Get returns the record with the given id.
func (s *RunStore) Get(_ context.Context, id types.RunID) (*types.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.read()
	if err != nil {
		return nil, err
	}
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].ID == id {
			return recs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
}

// Count returns the number of journaled runs.
func (s *RunStore) Count(ctx context.Context) (int, error) {
	recs, err := s.Tail(ctx, 0)
	return len(recs), err
}
