package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/jkpraja/genMJP/internal/types"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusComplete  RunStatus = "complete"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// StatusFor maps a processor result onto a terminal status.
func StatusFor(err error) RunStatus {
	switch {
	case err == nil:
		return RunStatusComplete
	case errors.Is(err, context.Canceled):
		return RunStatusCancelled
	default:
		return RunStatusFailed
	}
}

// Run is one trigger of the pipeline, from enqueue to its terminal status.
type Run struct {
	ID          types.RunID
	Lane        types.LaneKey
	Kind        types.TriggerKind
	Status      RunStatus
	TriggeredAt time.Time
	StartedAt   *time.Time
	EndedAt     *time.Time
	Error       error

	// Ctx is set by the queue when processing starts.
	Ctx context.Context
	// Record is filled in by the processor.
	Record *types.RunRecord

	OnComplete func(*Run)

	done chan struct{}
}

// NewRun creates a Run in the Queued state.
func NewRun(lane types.LaneKey, kind types.TriggerKind, triggeredAt time.Time) *Run {
	return &Run{
		ID:          types.NewRunID(),
		Lane:        lane,
		Kind:        kind,
		Status:      RunStatusQueued,
		TriggeredAt: triggeredAt,
		done:        make(chan struct{}),
	}
}

// Done is closed once the run reached a terminal status.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run finishes or ctx ends.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Error
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Run) start(ctx context.Context) {
	now := time.Now()
	r.Ctx = ctx
	r.StartedAt = &now
	r.Status = RunStatusRunning
}

func (r *Run) finish(err error) {
	now := time.Now()
	r.EndedAt = &now
	r.Error = err
	r.Status = StatusFor(err)
	if r.OnComplete != nil {
		r.OnComplete(r)
	}
	close(r.done)
}
