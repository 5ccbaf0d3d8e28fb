package main

import (
	"context"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/jkpraja/genMJP/internal/gateway"
	"github.com/jkpraja/genMJP/internal/types"
	"github.com/jkpraja/genMJP/internal/webhook"
)

func TestDescribeLastRunReportsSweep(t *testing.T) {
	stop := time.Date(2024, time.January, 15, 10, 0, 5, 0, time.UTC)
	rec := &types.RunRecord{
		ID:      "run-1",
		Status:  string(gateway.RunStatusCancelled),
		EndedAt: stop.Add(2 * time.Second),
		Steps: []types.StepResult{
			{Name: "refresh", Status: types.StepOK},
			{Name: "generate", Status: types.StepOK},
			{Name: "sweep", Status: types.StepOK, Detail: "pushed midjourney_prompts_240115.txt", Advisory: true},
		},
	}
	got := describeLastRun(rec, stop)
	want := "Last run run-1: cancelled; sweep ok: pushed midjourney_prompts_240115.txt"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	rec.Steps[2] = types.StepResult{Name: "sweep", Status: types.StepFailed, Error: "push rejected", Advisory: true}
	if got := describeLastRun(rec, stop); !strings.HasSuffix(got, "sweep failed: push rejected") {
		t.Errorf("expected sweep error, got %q", got)
	}
}

func TestDescribeLastRunBeforeStop(t *testing.T) {
	stop := time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC)
	rec := &types.RunRecord{ID: "run-0", Status: string(gateway.RunStatusComplete), EndedAt: stop.Add(-time.Hour)}
	got := describeLastRun(rec, stop)
	if !strings.Contains(got, "before the stop") || strings.Contains(got, "sweep") {
		t.Errorf("unexpected summary %q", got)
	}
}

func TestFetchHealthReadsQueueCounts(t *testing.T) {
	srv := webhook.NewServer(nil, nil, func() (int64, int64) { return 1, 3 })
	ts := httptest.NewServer(srv)
	defer ts.Close()

	h, err := fetchHealth(context.Background(), strings.TrimPrefix(ts.URL, "http://"))
	if err != nil {
		t.Fatal(err)
	}
	if h.Status != "ok" || h.Active != 1 || h.Queued != 3 {
		t.Errorf("unexpected health %+v", h)
	}
}

func TestDaemonPID(t *testing.T) {
	dir := t.TempDir()
	if _, err := daemonPID(dir); err == nil || !strings.Contains(err.Error(), "PID file not found") {
		t.Fatalf("expected missing PID file error, got %v", err)
	}

	path, err := writePIDFile(dir)
	if err != nil {
		t.Fatal(err)
	}
	pid, err := daemonPID(dir)
	if err != nil {
		t.Fatal(err)
	}
	if pid != os.Getpid() {
		t.Errorf("expected own pid %d, got %d", os.Getpid(), pid)
	}

	if err := os.WriteFile(path, []byte("not-a-pid\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := daemonPID(dir); err == nil {
		t.Error("expected error for invalid PID file")
	}
}

func TestWaitExit(t *testing.T) {
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skipf("cannot run true: %v", err)
	}
	if !waitExit(cmd.Process.Pid, time.Second) {
		t.Errorf("expected exited process %d to be reported gone", cmd.Process.Pid)
	}
	if waitExit(os.Getpid(), 3*exitPoll) {
		t.Error("expected own process to outlive the wait")
	}
}
