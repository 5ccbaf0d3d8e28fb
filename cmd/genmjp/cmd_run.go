package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jkpraja/genMJP/internal/gateway"
	"github.com/jkpraja/genMJP/internal/types"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once and exit",
	Long: `Run the pipeline once: generate today's prompts, commit and push them,
deliver yesterday's file when due and sweep leftovers. Concurrent invocations
sharing a data dir wait for each other.`,
	Args: cobra.NoArgs,
	RunE: runOnce,
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := checkConfig(cfg); err != nil {
		return err
	}
	runner, _, err := buildRunner(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run := gateway.NewRun(types.NewLaneKey("pipeline", "genmjp"), types.TriggerManual, runner.Calendar.Now())
	run.Ctx = ctx
	if err := runner.Process(run); err != nil {
		return fmt.Errorf("run %s: %w", run.ID, err)
	}

	if rec := run.Record; rec != nil && rec.Decision != nil {
		fmt.Fprintf(os.Stdout, "Run %s complete (send=%t: %s).\n", run.ID, rec.Decision.Send, rec.Decision.Reason)
	} else {
		fmt.Fprintf(os.Stdout, "Run %s complete.\n", run.ID)
	}
	return nil
}
