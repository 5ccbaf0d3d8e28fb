//go:build integration

package test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jkpraja/genMJP/internal/calendar"
	"github.com/jkpraja/genMJP/internal/delivery"
	"github.com/jkpraja/genMJP/internal/gateway"
	"github.com/jkpraja/genMJP/internal/generator"
	"github.com/jkpraja/genMJP/internal/ledger"
	"github.com/jkpraja/genMJP/internal/pipeline"
	"github.com/jkpraja/genMJP/internal/state"
	"github.com/jkpraja/genMJP/internal/types"
)

func git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	args = append([]string{"-c", "user.name=test", "-c", "user.email=test@example.com"}, args...)
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// setupRemote creates a bare remote with one commit on main and returns it
// with two independent clones.
func setupRemote(t *testing.T) (remote, a, b string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	root := t.TempDir()
	remote = filepath.Join(root, "remote.git")
	seed := filepath.Join(root, "seed")
	a = filepath.Join(root, "a")
	b = filepath.Join(root, "b")

	git(t, root, "init", "--bare", remote)
	git(t, root, "clone", remote, seed)
	git(t, seed, "symbolic-ref", "HEAD", "refs/heads/main")
	if err := os.WriteFile(filepath.Join(seed, "README.md"), []byte("prompts\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	git(t, seed, "add", "README.md")
	git(t, seed, "commit", "-m", "init")
	git(t, seed, "push", "origin", "HEAD:main")
	git(t, remote, "symbolic-ref", "HEAD", "refs/heads/main")

	git(t, root, "clone", "-b", "main", remote, a)
	git(t, root, "clone", "-b", "main", remote, b)
	return remote, a, b
}

func onRemote(t *testing.T, remote, name string) bool {
	t.Helper()
	cmd := exec.Command("git", "cat-file", "-e", "main:"+name)
	cmd.Dir = remote
	return cmd.Run() == nil
}

type recorder struct {
	mu   sync.Mutex
	sent []delivery.Message
}

func (r *recorder) Send(_ context.Context, msg delivery.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func newRunner(t *testing.T, dir string, now *time.Time, mailer delivery.Mailer) *pipeline.Runner {
	t.Helper()
	cal, err := calendar.New(calendar.DefaultTimezone, func() time.Time { return *now })
	if err != nil {
		t.Fatal(err)
	}
	return &pipeline.Runner{
		Store: ledger.NewGitStore(&ledger.ExecGit{}, dir, "origin", "main", ledger.WithAuthor("genmjp", "genmjp@example.com")),
		Generator: &generator.Command{
			Template: `for i in $(seq {count}); do echo "prompt $i for {date}"; done >> {output}`,
			Count:    3,
			Dir:      dir,
		},
		Mailer:     mailer,
		Calendar:   cal,
		Naming:     calendar.DefaultNaming(),
		SendHour:   4,
		Recipients: []string{"ops@example.com"},
		Subject:    "Midjourney Prompts - {date}",
		Journal:    state.NewRunStore(t.TempDir()),
	}
}

func TestEndToEnd(t *testing.T) {
	remote, a, _ := setupRemote(t)
	loc, _ := time.LoadLocation(calendar.DefaultTimezone)
	now := time.Date(2024, time.January, 15, 10, 0, 0, 0, loc)
	mailer := &recorder{}
	runner := newRunner(t, a, &now, mailer)

	gw := gateway.New("integration")
	gw.SetProcessor(runner.Process)
	ctx := context.Background()
	gw.Start(ctx)
	defer gw.Stop()

	trigger := func() *gateway.Run {
		t.Helper()
		run, err := gw.Trigger(ctx, types.TriggerScheduled)
		if err != nil {
			t.Fatal(err)
		}
		waitCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if err := run.Wait(waitCtx); err != nil {
			t.Fatalf("run %s: %v", run.ID, err)
		}
		return run
	}

	trigger()
	if !onRemote(t, remote, "midjourney_prompts_240115.txt") {
		t.Fatal("expected today's file on the remote")
	}

	now = time.Date(2024, time.January, 16, 4, 0, 0, 0, loc)
	run := trigger()
	if mailer.count() != 1 {
		t.Fatalf("expected one send, got %d", mailer.count())
	}
	if !onRemote(t, remote, "email_sent_240115.flag") {
		t.Fatal("expected the sent-flag on the remote")
	}
	if run.Record.Decision == nil || !run.Record.Decision.Send {
		t.Errorf("expected a send decision, got %+v", run.Record.Decision)
	}

	now = time.Date(2024, time.January, 16, 10, 0, 0, 0, loc)
	trigger()
	if mailer.count() != 1 {
		t.Errorf("expected no resend after the flag, got %d sends", mailer.count())
	}
}

func TestConcurrentWriterIsRebasedOver(t *testing.T) {
	remote, a, b := setupRemote(t)
	loc, _ := time.LoadLocation(calendar.DefaultTimezone)
	now := time.Date(2024, time.January, 15, 10, 0, 0, 0, loc)
	runner := newRunner(t, a, &now, &recorder{})

	// Another writer pushes between our refresh and our push.
	inner := runner.Generator
	runner.Generator = generator.Func(func(ctx context.Context, req generator.Request) (*generator.Result, error) {
		res, err := inner.Generate(ctx, req)
		if err != nil {
			return res, err
		}
		if err := os.WriteFile(filepath.Join(b, "notes.md"), []byte("other writer\n"), 0o644); err != nil {
			return nil, err
		}
		git(t, b, "add", "notes.md")
		git(t, b, "commit", "-m", "other writer")
		git(t, b, "push", "origin", "HEAD:main")
		return res, nil
	})

	run := gateway.NewRun(types.NewLaneKey("pipeline", "integration"), types.TriggerManual, now)
	run.Ctx = context.Background()
	if err := runner.Process(run); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if !onRemote(t, remote, "midjourney_prompts_240115.txt") || !onRemote(t, remote, "notes.md") {
		t.Fatal("expected both writers' files on the remote")
	}
}

func TestCancelledRunIsSwept(t *testing.T) {
	remote, a, _ := setupRemote(t)
	loc, _ := time.LoadLocation(calendar.DefaultTimezone)
	now := time.Date(2024, time.January, 15, 10, 0, 0, 0, loc)
	runner := newRunner(t, a, &now, &recorder{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inner := runner.Generator
	runner.Generator = generator.Func(func(ctx context.Context, req generator.Request) (*generator.Result, error) {
		res, err := inner.Generate(ctx, req)
		cancel()
		return res, err
	})

	run := gateway.NewRun(types.NewLaneKey("pipeline", "integration"), types.TriggerManual, now)
	run.Ctx = ctx
	if err := runner.Process(run); err == nil {
		t.Fatal("expected the run to report cancellation")
	}
	if run.Record.Status != string(gateway.RunStatusCancelled) {
		t.Errorf("expected cancelled, got %s", run.Record.Status)
	}
	if !onRemote(t, remote, "midjourney_prompts_240115.txt") {
		t.Fatal("expected the sweep to push today's file")
	}
}
