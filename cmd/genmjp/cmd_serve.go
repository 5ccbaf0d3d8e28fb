package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkpraja/genMJP/internal/gateway"
	"github.com/jkpraja/genMJP/internal/scheduler"
	"github.com/jkpraja/genMJP/internal/types"
	"github.com/jkpraja/genMJP/internal/webhook"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the genmjp daemon",
	RunE:  runServe,
}

func pidPath(dataDir string) string {
	return filepath.Join(dataDir, "genmjp.pid")
}

func writePIDFile(dataDir string) (string, error) {
	path := pidPath(dataDir)
	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return path, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := checkConfig(cfg); err != nil {
		return err
	}
	runner, journal, err := buildRunner(cfg)
	if err != nil {
		return err
	}

	pidFile, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidFile)

	// Gateway
	gw := gateway.New("genmjp", gateway.WithClock(runner.Calendar.Now))
	gw.SetProcessor(runner.Process)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw.Start(ctx)
	defer gw.Stop()

	slog.Info("genmjp started",
		"version", Version,
		"data_dir", cfg.DataDir,
		"repo", cfg.Repo.Dir,
		"timezone", cfg.Timezone,
		"schedule", cfg.Schedule,
		"send_hour", cfg.SendHour,
		"pid_file", pidFile,
	)

	// Scheduler
	sched := scheduler.New(cfg.Schedule, runner.Calendar.Location(), func() {
		if _, err := gw.Trigger(ctx, types.TriggerScheduled); err != nil {
			slog.Error("scheduled trigger failed", "error", err)
		}
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()
	slog.Info("scheduler started", "next", sched.Next())

	// HTTP server
	if cfg.HTTP.Enabled {
		srv := webhook.NewServer(func(ctx context.Context) (*gateway.Run, error) {
			return gw.Trigger(ctx, types.TriggerManual)
		}, journal, gw.Queue.Stats)
		httpServer := &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           srv,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("http server started", "listen", cfg.HTTP.Listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("http server error", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			httpServer.Close()
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			// Let the in-flight run finish; exec does not run deferred calls.
			if !gw.Queue.WaitIdle(time.Duration(cfg.SweepTimeoutSeconds+60) * time.Second) {
				slog.Warn("restarting with a run still in flight")
			}
			os.Remove(pidFile)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		// SIGINT or SIGTERM: cancel the in-flight run; its sweep still runs.
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}
