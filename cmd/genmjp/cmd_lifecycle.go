package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkpraja/genMJP/internal/config"
	"github.com/jkpraja/genMJP/internal/state"
	"github.com/jkpraja/genMJP/internal/types"
)

const exitPoll = 200 * time.Millisecond

func init() {
	rootCmd.AddCommand(stopCmd, restartCmd)
	stopCmd.Flags().Duration("wait", 0, "how long to wait for the daemon to exit (default: sweep timeout plus one minute)")
	stopCmd.Flags().Bool("no-wait", false, "return right after signalling")
}

// daemonPID reads the PID file in dataDir and checks the process is alive.
func daemonPID(dataDir string) (int, error) {
	data, err := os.ReadFile(pidPath(dataDir))
	if errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("no running daemon (PID file not found)")
	}
	if err != nil {
		return 0, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	if !alive(pid) {
		return 0, fmt.Errorf("no running daemon (process %d not found)", pid)
	}
	return pid, nil
}

func alive(pid int) bool {
	return syscall.Kill(pid, syscall.Signal(0)) == nil
}

func signalDaemon(dataDir string, sig syscall.Signal) (int, error) {
	pid, err := daemonPID(dataDir)
	if err != nil {
		return 0, err
	}
	if err := syscall.Kill(pid, sig); err != nil {
		return 0, fmt.Errorf("send %s: %w", sig, err)
	}
	return pid, nil
}

// waitExit polls until pid is gone or timeout elapses.
func waitExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for alive(pid) {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(exitPoll)
	}
	return true
}

// stopWait covers a cancelled run's sweep plus the journal write.
func stopWait(cfg *config.Config) time.Duration {
	return time.Duration(cfg.SweepTimeoutSeconds)*time.Second + time.Minute
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon and report how its last run ended",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		noWait, _ := cmd.Flags().GetBool("no-wait")
		wait, _ := cmd.Flags().GetDuration("wait")
		if wait <= 0 {
			wait = stopWait(cfg)
		}

		sent := time.Now()
		pid, err := signalDaemon(cfg.DataDir, syscall.SIGTERM)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Sent SIGTERM to daemon (PID %d); an in-flight run is cancelled and swept.\n", pid)
		if noWait {
			return nil
		}

		if !waitExit(pid, wait) {
			return fmt.Errorf("daemon (PID %d) still running after %s", pid, wait)
		}
		fmt.Fprintf(os.Stdout, "Daemon stopped.\n")

		recs, err := state.NewRunStore(cfg.DataDir).Tail(context.Background(), 1)
		if err != nil {
			return fmt.Errorf("read journal: %w", err)
		}
		if len(recs) == 0 {
			return nil
		}
		fmt.Fprintln(os.Stdout, describeLastRun(recs[0], sent))
		return nil
	},
}

// describeLastRun summarizes rec for the operator, including the sweep
// outcome when the run was interrupted by the stop.
func describeLastRun(rec *types.RunRecord, stoppedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Last run %s: %s", rec.ID, rec.Status)
	if rec.EndedAt.Before(stoppedAt) {
		fmt.Fprintf(&b, " (finished %s, before the stop)", rec.EndedAt.Format("2006-01-02 15:04:05"))
		return b.String()
	}
	for _, s := range rec.Steps {
		if s.Name != "sweep" {
			continue
		}
		detail := s.Detail
		if s.Error != "" {
			detail = s.Error
		}
		fmt.Fprintf(&b, "; sweep %s: %s", s.Status, detail)
		return b.String()
	}
	b.WriteString("; no sweep recorded")
	return b.String()
}

type health struct {
	Status string `json:"status"`
	Active int64  `json:"active"`
	Queued int64  `json:"queued"`
}

func fetchHealth(ctx context.Context, listen string) (*health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+listen+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	var h health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	return &h, nil
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the daemon after its current run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		var h *health
		if cfg.HTTP.Enabled {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			var err error
			if h, err = fetchHealth(ctx, cfg.HTTP.Listen); err != nil {
				fmt.Fprintf(os.Stderr, "Could not read queue state: %v\n", err)
			}
		}

		pid, err := signalDaemon(cfg.DataDir, syscall.SIGHUP)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Sent SIGHUP to daemon (PID %d) for restart.\n", pid)
		if h != nil {
			fmt.Fprintf(os.Stdout, "It restarts once idle: %d active, %d queued run(s).\n", h.Active, h.Queued)
		}
		return nil
	},
}
