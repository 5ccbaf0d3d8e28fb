package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkpraja/genMJP/internal/calendar"
	"github.com/jkpraja/genMJP/internal/decider"
)

func init() {
	rootCmd.AddCommand(decideCmd)
	decideCmd.Flags().String("at", "", `evaluate at this time in the reference timezone ("2006-01-02 15:04"), default now`)
}

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Show whether a run would deliver yesterday's file",
	Long: `Evaluate the delivery decision against the current working copy without
generating, committing or sending anything.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		at, _ := cmd.Flags().GetString("at")

		cal, err := calendar.New(cfg.Timezone, nil)
		if err != nil {
			return err
		}
		if at != "" {
			t, err := time.ParseInLocation("2006-01-02 15:04", at, cal.Location())
			if err != nil {
				return fmt.Errorf("parse --at: %w", err)
			}
			cal = calendar.WithLocation(cal.Location(), func() time.Time { return t })
		}

		ev := decider.Evaluator{Calendar: cal, Naming: naming(cfg), SendHour: cfg.SendHour}
		d, attachment, err := ev.Evaluate(newStore(cfg))
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Now:        %s\n", cal.Now().Format("2006-01-02 15:04 MST"))
		fmt.Fprintf(os.Stdout, "Date:       %s (hour %s, send hour %02d)\n", d.Date, d.Hour, cfg.SendHour)
		fmt.Fprintf(os.Stdout, "File:       %s exists=%t\n", attachment, d.FileExists)
		fmt.Fprintf(os.Stdout, "Flag:       %s exists=%t\n", ev.Naming.Flag(d.Date), d.FlagExists)
		fmt.Fprintf(os.Stdout, "Send:       %t (%s)\n", d.Send, d.Reason)
		return nil
	},
}
