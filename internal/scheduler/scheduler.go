// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule fires on every full and half hour.
const DefaultSchedule = "*/30 * * * *"

// Handler is invoked on every tick.
type Handler func()

// Scheduler fires a single handler on a cron schedule evaluated in the
// reference location.
type Scheduler struct {
	spec    string
	loc     *time.Location
	handler Handler
	cron    *cron.Cron
	entry   cron.EntryID
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Parse checks spec without scheduling anything.
func Parse(spec string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched, nil
}

func New(spec string, loc *time.Location, handler Handler) *Scheduler {
	if spec == "" {
		spec = DefaultSchedule
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{spec: spec, loc: loc, handler: handler}
}

// Start registers the handler and starts the ticker. Ticks that arrive while
// the previous handler call is still running are not skipped; the handler
// only enqueues work, so it returns quickly.
func (s *Scheduler) Start() error {
	s.cron = cron.New(cron.WithParser(cronParser), cron.WithLocation(s.loc))
	id, err := s.cron.AddFunc(s.spec, func() {
		slog.Info("cron tick", "schedule", s.spec)
		s.handler()
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.spec, err)
	}
	s.entry = id
	s.cron.Start()
	slog.Info("scheduler started", "schedule", s.spec, "timezone", s.loc.String(), "next", s.Next())
	return nil
}

// Next returns the next tick, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	if s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// Stop stops the ticker and waits for a running handler to return.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return s.cron.Stop()
}
