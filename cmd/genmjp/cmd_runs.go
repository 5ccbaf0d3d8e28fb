package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jkpraja/genMJP/internal/state"
	"github.com/jkpraja/genMJP/internal/types"
)

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsShowCmd)
	runsListCmd.Flags().Int("limit", 20, "number of runs to show")
	runsShowCmd.Flags().Bool("json", false, "print the raw journal entry")
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run journal",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		limit, _ := cmd.Flags().GetInt("limit")

		recs, err := state.NewRunStore(cfg.DataDir).Tail(context.Background(), limit)
		if err != nil {
			return fmt.Errorf("read journal: %w", err)
		}
		if len(recs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tSTATUS\tTODAY\tSEND\tSTARTED")
		for i := len(recs) - 1; i >= 0; i-- {
			r := recs[i]
			send := "-"
			if r.Decision != nil {
				send = fmt.Sprintf("%t", r.Decision.Send)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.ID,
				r.Kind,
				r.Status,
				r.Today,
				send,
				r.StartedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one run with its steps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		rec, err := state.NewRunStore(cfg.DataDir).Get(context.Background(), types.RunID(args[0]))
		if errors.Is(err, state.ErrRunNotFound) {
			return fmt.Errorf("run not found: %s", args[0])
		}
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		}

		fmt.Printf("Run %s (%s) %s\n", rec.ID, rec.Kind, rec.Status)
		if rec.Error != "" {
			fmt.Printf("Error: %s\n", rec.Error)
		}
		if d := rec.Decision; d != nil {
			fmt.Printf("Decision for %s at hour %s: send=%t (%s)\n", d.Date, d.Hour, d.Send, d.Reason)
		}
		printSteps(rec)
		return nil
	},
}

func printSteps(rec *types.RunRecord) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tSTATUS\tMS\tDETAIL")
	for _, s := range rec.Steps {
		detail := s.Detail
		if s.Error != "" {
			detail = s.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.Name, s.Status, s.Duration, detail)
	}
	w.Flush()
}
