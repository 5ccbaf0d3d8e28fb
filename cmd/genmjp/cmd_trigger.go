package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkpraja/genMJP/internal/webhook"
)

func init() {
	rootCmd.AddCommand(triggerCmd)
	triggerCmd.Flags().Bool("wait", false, "block until the run finishes")
}

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Queue a manual run on the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if !cfg.HTTP.Enabled {
			return fmt.Errorf("http.enabled is false; enable it for the daemon or use 'genmjp run'")
		}
		wait, _ := cmd.Flags().GetBool("wait")

		url := "http://" + cfg.HTTP.Listen + "/trigger"
		client := &http.Client{Timeout: 10 * time.Second}
		if wait {
			url += "?wait=1"
			client.Timeout = 31 * time.Minute
		}

		resp, err := client.Post(url, "application/json", nil)
		if err != nil {
			return fmt.Errorf("trigger run: %w", err)
		}
		defer resp.Body.Close()

		var body webhook.TriggerResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
		}
		if body.RunID == "" {
			return fmt.Errorf("trigger run: HTTP %d: %s", resp.StatusCode, body.Error)
		}

		fmt.Fprintf(os.Stdout, "Run %s: %s\n", body.RunID, body.Status)
		if body.Record != nil {
			printSteps(body.Record)
		}
		if body.Error != "" {
			return fmt.Errorf("run %s: %s", body.RunID, body.Error)
		}
		return nil
	},
}
