package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jkpraja/genMJP/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("genmjp Setup Wizard")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.Repo.Dir = prompt(scanner, "Repository working copy", cfg.Repo.Dir)
		cfg.Generator.Command = prompt(scanner, "Generator command", cfg.Generator.Command)
		if n, err := strconv.Atoi(prompt(scanner, "Prompts per run", strconv.Itoa(cfg.Generator.Count))); err == nil {
			cfg.Generator.Count = n
		}
		cfg.Timezone = prompt(scanner, "Timezone", cfg.Timezone)

		cfg.OpenAI.APIKey = prompt(scanner, "OpenAI API key", cfg.OpenAI.APIKey)
		cfg.OpenAI.AssistantID = prompt(scanner, "Assistant ID", cfg.OpenAI.AssistantID)

		cfg.SMTP.Host = prompt(scanner, "SMTP host", cfg.SMTP.Host)
		if n, err := strconv.Atoi(prompt(scanner, "SMTP port", strconv.Itoa(cfg.SMTP.Port))); err == nil {
			cfg.SMTP.Port = n
		}
		cfg.SMTP.Username = prompt(scanner, "SMTP username", cfg.SMTP.Username)
		cfg.SMTP.Password = prompt(scanner, "SMTP password", cfg.SMTP.Password)
		cfg.Mail.From = prompt(scanner, "Sender address", cfg.Mail.From)
		cfg.Mail.To = prompt(scanner, "Recipients (comma separated, telegram:<chat_id> allowed)", cfg.Mail.To)

		// Optional
		cfg.Telegram.Token = prompt(scanner, "Telegram bot token (optional)", cfg.Telegram.Token)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		if errs := config.Validate(cfg); len(errs) > 0 {
			fmt.Println("Still missing before the first run:")
			for _, e := range errs {
				fmt.Println("  " + e.Error())
			}
		}
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
