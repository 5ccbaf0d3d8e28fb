// Package pipeline runs one trigger end to end: generate today's prompts,
// sync them, decide whether yesterday's file goes out, deliver it, record
// the sent-flag and finally sweep anything left uncommitted.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jkpraja/genMJP/internal/calendar"
	"github.com/jkpraja/genMJP/internal/decider"
	"github.com/jkpraja/genMJP/internal/delivery"
	"github.com/jkpraja/genMJP/internal/gateway"
	"github.com/jkpraja/genMJP/internal/generator"
	"github.com/jkpraja/genMJP/internal/ledger"
	"github.com/jkpraja/genMJP/internal/types"
)

// ErrConfig wraps validation failures. A run that fails with it has not
// touched the repository.
var ErrConfig = errors.New("invalid configuration")

// DefaultSweepTimeout bounds the cleanup sweep when the run itself was
// cancelled.
const DefaultSweepTimeout = 5 * time.Minute

const lockPoll = time.Second

// Journal persists finished run records.
type Journal interface {
	Append(ctx context.Context, rec *types.RunRecord) error
}

// Archiver mirrors files from the working copy elsewhere.
type Archiver interface {
	Upload(ctx context.Context, dir string, names []string) error
}

// Runner holds everything a run needs. Journal, Archive, Lock and Validate
// are optional.
type Runner struct {
	Store      ledger.Store
	Generator  generator.Generator
	Mailer     delivery.Mailer
	Calendar   *calendar.Calendar
	Naming     calendar.Naming
	SendHour   int
	Recipients []string
	Subject    string
	RepoName   string
	Tokens     delivery.TokenCounter

	Journal Journal
	Archive Archiver
	// Lock serializes runs across processes sharing a data dir.
	Lock *gateway.Lock
	// Validate runs before anything else; an error aborts the run.
	Validate func(ctx context.Context) error

	SweepTimeout time.Duration
}

// Process executes one run. It is the gateway's processor.
func (r *Runner) Process(run *gateway.Run) (err error) {
	ctx := run.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	rep := &report{
		rec: &types.RunRecord{
			ID:          run.ID,
			Kind:        run.Kind,
			TriggeredAt: run.TriggeredAt,
			StartedAt:   r.Calendar.Now(),
		},
		log: slog.With("run_id", string(run.ID), "kind", string(run.Kind)),
	}
	run.Record = rep.rec
	defer func() { r.finish(ctx, rep, err) }()

	if r.Validate != nil {
		if verr := r.Validate(ctx); verr != nil {
			return fmt.Errorf("%w: %w", ErrConfig, verr)
		}
	}

	if r.Lock != nil {
		if err := r.Lock.Acquire(ctx, lockPoll); err != nil {
			return fmt.Errorf("acquire run lock: %w", err)
		}
		defer func() {
			if err := r.Lock.Release(); err != nil {
				rep.log.Warn("release run lock", "error", err)
			}
		}()
	}

	defer r.sweep(ctx, rep)

	return r.steps(ctx, rep)
}

func (r *Runner) steps(ctx context.Context, rep *report) error {
	today := r.Calendar.Today()
	output := r.Naming.Output(today)
	rep.rec.Today = string(today)

	rep.do("refresh", true, func() (string, error) {
		return "", r.Store.Rebase(ctx)
	})
	if err := ctx.Err(); err != nil {
		return err
	}

	genErr := rep.do("generate", false, func() (string, error) {
		return r.generate(ctx, today, output)
	})
	if err := ctx.Err(); err != nil {
		return err
	}
	if genErr != nil {
		rep.skip("sync", "generation failed")
		rep.skip("mail", "generation failed")
		return fmt.Errorf("generate: %w", genErr)
	}

	syncErr := rep.do("sync", false, func() (string, error) {
		msg := ledger.CommitMessage("Add prompts for "+string(today), r.Calendar.Now())
		res, err := ledger.Sync(ctx, r.Store, []string{output}, msg)
		return syncDetail(res), err
	})
	if err := ctx.Err(); err != nil {
		return err
	}

	ev := decider.Evaluator{Calendar: r.Calendar, Naming: r.Naming, SendHour: r.SendHour}
	var (
		decision   decider.Decision
		attachment string
	)
	decideErr := rep.do("decide", false, func() (string, error) {
		var err error
		decision, attachment, err = ev.Evaluate(r.Store)
		if err != nil {
			return "", err
		}
		rep.rec.Decision = decision.Record()
		return fmt.Sprintf("send=%t %s", decision.Send, decision.Reason), nil
	})

	switch {
	case syncErr != nil:
		rep.skip("mail", "sync failed")
		return fmt.Errorf("sync: %w", syncErr)
	case decideErr != nil:
		rep.skip("mail", "decision failed")
		return fmt.Errorf("decide: %w", decideErr)
	case !decision.Send:
		rep.skip("mail", decision.Reason)
	default:
		if err := r.deliver(ctx, rep, decision, attachment); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if r.Archive != nil {
		rep.do("archive", true, func() (string, error) {
			names := []string{output, attachment, r.Naming.Flag(decision.Date)}
			return "", r.Archive.Upload(ctx, r.Store.Dir(), names)
		})
	}
	return nil
}

func (r *Runner) generate(ctx context.Context, today calendar.DateKey, output string) (string, error) {
	res, err := r.Generator.Generate(ctx, generator.Request{Day: today, Output: r.Store.Path(output)})
	if err != nil {
		return "", err
	}
	ok, err := r.Store.Exists(output)
	if err != nil {
		return "", err
	}
	if !ok {
		return "no output file written", nil
	}
	detail := output
	if d, err := delivery.DigestFile(r.Store.Path(output), nil); err != nil {
		detail += fmt.Sprintf(" (no stats: %v)", err)
	} else {
		detail += fmt.Sprintf(": %d prompts, %d characters", d.Prompts, d.Chars)
	}
	if res != nil && res.Duration > 0 {
		detail += fmt.Sprintf(" in %s", res.Duration.Round(time.Millisecond))
	}
	return detail, nil
}

// deliver mails yesterday's file and records the sent-flag. The flag is
// only written after the mailer confirmed the send.
func (r *Runner) deliver(ctx context.Context, rep *report, d decider.Decision, attachment string) error {
	mailErr := rep.do("mail", false, func() (string, error) {
		digest, err := delivery.DigestFile(r.Store.Path(attachment), r.Tokens)
		if err != nil {
			return "", err
		}
		subject, body := delivery.Compose(r.Subject, string(d.Date), r.RepoName, digest)
		msg := delivery.Message{
			To:         r.Recipients,
			Subject:    subject,
			Body:       body,
			Attachment: r.Store.Path(attachment),
		}
		if err := r.Mailer.Send(ctx, msg); err != nil {
			return "", err
		}
		return fmt.Sprintf("sent %s to %d recipient(s)", attachment, len(r.Recipients)), nil
	})
	if mailErr != nil {
		rep.skip("flag", "mail failed")
		return fmt.Errorf("mail: %w", mailErr)
	}

	flag := r.Naming.Flag(d.Date)
	flagErr := rep.do("flag", false, func() (string, error) {
		if err := r.Store.Touch(flag); err != nil {
			return "", fmt.Errorf("create %s: %w", flag, err)
		}
		msg := ledger.CommitMessage("Mark "+string(d.Date)+" as sent", r.Calendar.Now())
		res, err := ledger.Sync(ctx, r.Store, []string{flag}, msg)
		return syncDetail(res), err
	})
	if flagErr != nil {
		return fmt.Errorf("record flag: %w", flagErr)
	}
	return nil
}

// sweep commits and pushes whatever a run left behind. It runs on every
// exit path after validation, including cancellation, and never fails the
// run.
func (r *Runner) sweep(parent context.Context, rep *report) {
	timeout := r.SweepTimeout
	if timeout <= 0 {
		timeout = DefaultSweepTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), timeout)
	defer cancel()

	rep.do("sweep", true, func() (string, error) {
		pending, err := r.Store.Uncommitted(ctx, r.Naming.OutputGlob(), r.Naming.FlagGlob())
		if err != nil {
			return "", fmt.Errorf("list uncommitted: %w", err)
		}
		if len(pending) > 0 {
			msg := ledger.CommitMessage("Commit leftover outputs", r.Calendar.Now())
			res, err := ledger.Sync(ctx, r.Store, pending, msg)
			return syncDetail(res), err
		}

		ahead, err := r.Store.Ahead(ctx)
		if err != nil {
			return "", fmt.Errorf("count unpushed commits: %w", err)
		}
		if ahead == 0 {
			return "clean", nil
		}
		if err := ledger.PushWithRebaseRetry(ctx, r.Store); err != nil {
			return "", err
		}
		return fmt.Sprintf("pushed %d pending commit(s)", ahead), nil
	})
}

func (r *Runner) finish(ctx context.Context, rep *report, err error) {
	rec := rep.rec
	rec.EndedAt = r.Calendar.Now()
	rec.Status = string(gateway.StatusFor(err))
	if err != nil {
		rec.Error = err.Error()
	}

	if errors.Is(err, ErrConfig) {
		rep.log.Error("run aborted", "error", err)
	} else {
		rep.log.Info("run finished", "status", rec.Status, "today", rec.Today,
			"duration", rec.EndedAt.Sub(rec.StartedAt).Round(time.Millisecond))
	}

	if r.Journal == nil {
		return
	}
	if jerr := r.Journal.Append(context.WithoutCancel(ctx), rec); jerr != nil {
		rep.log.Warn("journal run", "error", jerr)
	}
}

func syncDetail(res ledger.Result) string {
	switch {
	case len(res.Files) == 0:
		return "nothing to commit"
	case res.Pushed:
		return "pushed " + strings.Join(res.Files, ", ")
	case res.Committed:
		return "committed " + strings.Join(res.Files, ", ")
	default:
		return "unchanged " + strings.Join(res.Files, ", ")
	}
}

// report accumulates step results into the run record.
type report struct {
	rec *types.RunRecord
	log *slog.Logger
}

func (p *report) do(name string, advisory bool, fn func() (string, error)) error {
	start := time.Now()
	detail, err := fn()
	res := types.StepResult{
		Name:     name,
		Status:   types.StepOK,
		Detail:   detail,
		Duration: time.Since(start).Milliseconds(),
		Advisory: advisory,
	}
	switch {
	case err != nil && advisory:
		res.Status = types.StepFailed
		res.Error = err.Error()
		p.log.Warn("step failed", "step", name, "error", err)
	case err != nil:
		res.Status = types.StepFailed
		res.Error = err.Error()
		p.log.Error("step failed", "step", name, "error", err)
	default:
		p.log.Info("step done", "step", name, "detail", detail, "duration_ms", res.Duration)
	}
	p.rec.Steps = append(p.rec.Steps, res)
	return err
}

func (p *report) skip(name, reason string) {
	p.rec.Steps = append(p.rec.Steps, types.StepResult{
		Name:   name,
		Status: types.StepSkipped,
		Detail: reason,
	})
	p.log.Info("step skipped", "step", name, "reason", reason)
}
