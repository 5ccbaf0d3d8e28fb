// Package generator runs the external prompt generator for one day.
package generator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/jkpraja/genMJP/internal/calendar"
)

// Generator appends the day's prompts to the dated output file.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

type Request struct {
	Day    calendar.DateKey
	Output string // absolute path of the dated output file
}

type Result struct {
	Output   string // tail of combined stdout/stderr
	Duration time.Duration
}

// maxOutput bounds the captured output kept for logs and the run journal.
const maxOutput = 4096

// Command runs a shell command line through bash -c in the repository
// working copy. {count}, {date} and {output} are substituted before the
// command runs.
type Command struct {
	Template string
	Count    int
	Dir      string
	Timeout  time.Duration // zero means no limit beyond ctx
	Env      map[string]string
}

func (c *Command) Expand(req Request) string {
	r := strings.NewReplacer(
		"{count}", strconv.Itoa(c.Count),
		"{date}", string(req.Day),
		"{output}", req.Output,
	)
	return r.Replace(c.Template)
}

func (c *Command) Generate(ctx context.Context, req Request) (*Result, error) {
	line := c.Expand(req)
	if strings.TrimSpace(line) == "" {
		return nil, fmt.Errorf("generator command is empty")
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "bash", "-c", line)
	cmd.Dir = c.Dir
	cmd.Env = os.Environ()
	for k, v := range c.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	// Let a killed generator's children release the pipes promptly.
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	output, err := cmd.CombinedOutput()
	res := &Result{Output: tail(string(output), maxOutput), Duration: time.Since(start)}
	if err != nil {
		if ctx.Err() != nil {
			return res, fmt.Errorf("generator interrupted: %w", ctx.Err())
		}
		return res, fmt.Errorf("generator failed: %w\nOutput: %s", err, res.Output)
	}
	return res, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// Func adapts a plain function to Generator.
type Func func(ctx context.Context, req Request) (*Result, error)

func (f Func) Generate(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}
