package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/jkpraja/genMJP/internal/types"
)

// Gateway turns triggers into runs on a single pipeline lane. At most one
// run is processed at a time; triggers arriving meanwhile wait in FIFO
// order.
type Gateway struct {
	Queue *Queue
	lane  types.LaneKey
	now   func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithClock overrides the clock used for TriggeredAt.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New creates a Gateway whose runs share the lane named after pipeline.
func New(pipeline string, opts ...Option) *Gateway {
	g := &Gateway{
		Queue: NewQueue(1),
		lane:  types.NewLaneKey("pipeline", pipeline),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start initialises the gateway's context and starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.Queue.Start(g.ctx)
}

// Stop cancels the in-flight run, finishes queued runs as cancelled and
// waits for the lane worker.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.Queue.Stop()
}

func (g *Gateway) SetProcessor(fn func(*Run) error) {
	g.Queue.SetProcessor(fn)
}

// RunOption configures optional behavior on a Run.
type RunOption func(*Run)

// WithOnComplete sets a callback invoked once the run reached a terminal
// status.
func WithOnComplete(fn func(*Run)) RunOption {
	return func(r *Run) { r.OnComplete = fn }
}

// Trigger creates a run of the given kind and queues it behind any run
// already in progress.
func (g *Gateway) Trigger(ctx context.Context, kind types.TriggerKind, opts ...RunOption) (*Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	run := NewRun(g.lane, kind, g.now())
	for _, opt := range opts {
		opt(run)
	}
	if err := g.Queue.Enqueue(run); err != nil {
		return nil, fmt.Errorf("enqueue %s run: %w", kind, err)
	}
	return run, nil
}
