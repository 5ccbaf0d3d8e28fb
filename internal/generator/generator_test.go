package generator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestExpand(t *testing.T) {
	c := &Command{Template: "python generate_prompts.py -n {count} # {date} {output}", Count: 500}
	got := c.Expand(Request{Day: "240115", Output: "/repo/midjourney_prompts_240115.txt"})
	want := "python generate_prompts.py -n 500 # 240115 /repo/midjourney_prompts_240115.txt"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestGenerateWritesInDirWithEnv(t *testing.T) {
	dir := t.TempDir()
	c := &Command{
		Template: `printf '%s|%s\n' "$TZ" "$ASSISTANT_ID" >> midjourney_prompts_{date}.txt`,
		Dir:      dir,
		Env:      map[string]string{"TZ": "Asia/Bangkok", "ASSISTANT_ID": "asst_1"},
	}

	if _, err := c.Generate(context.Background(), Request{Day: "240115"}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "midjourney_prompts_240115.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != "Asia/Bangkok|asst_1" {
		t.Errorf("unexpected file content %q", data)
	}
}

func TestGenerateCapturesOutput(t *testing.T) {
	c := &Command{Template: "echo out; echo err >&2", Dir: t.TempDir()}
	res, err := c.Generate(context.Background(), Request{Day: "240115"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Output, "out") || !strings.Contains(res.Output, "err") {
		t.Errorf("expected both streams, got %q", res.Output)
	}
}

func TestGenerateExitCode(t *testing.T) {
	c := &Command{Template: "echo boom; exit 3", Dir: t.TempDir()}
	res, err := c.Generate(context.Background(), Request{Day: "240115"})
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if !strings.Contains(err.Error(), "boom") || res == nil {
		t.Errorf("expected output in error, got %v", err)
	}
}

func TestGenerateTimeout(t *testing.T) {
	c := &Command{Template: "sleep 10", Dir: t.TempDir(), Timeout: 200 * time.Millisecond}
	start := time.Now()
	_, err := c.Generate(context.Background(), Request{Day: "240115"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("timeout took too long: %v", time.Since(start))
	}
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &Command{Template: "echo never", Dir: t.TempDir()}
	if _, err := c.Generate(ctx, Request{Day: "240115"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestGenerateEmptyCommand(t *testing.T) {
	c := &Command{Template: "  "}
	if _, err := c.Generate(context.Background(), Request{}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestTail(t *testing.T) {
	if tail("short", 10) != "short" {
		t.Error("short strings are kept")
	}
	if got := tail("0123456789", 4); got != "...6789" {
		t.Errorf("unexpected tail %q", got)
	}
}
