package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jkpraja/genMJP/internal/archive"
	"github.com/jkpraja/genMJP/internal/calendar"
	"github.com/jkpraja/genMJP/internal/config"
	"github.com/jkpraja/genMJP/internal/delivery"
	"github.com/jkpraja/genMJP/internal/gateway"
	"github.com/jkpraja/genMJP/internal/generator"
	"github.com/jkpraja/genMJP/internal/ledger"
	"github.com/jkpraja/genMJP/internal/pipeline"
	"github.com/jkpraja/genMJP/internal/state"
	"github.com/jkpraja/genMJP/internal/telegram"
	"github.com/jkpraja/genMJP/pkg/llm"
	"github.com/jkpraja/genMJP/pkg/llm/openai"
)

// tokenizerModel picks the tiktoken encoding used for digest token counts.
const tokenizerModel = "gpt-4o"

const verifyTimeout = 30 * time.Second

// checkConfig runs the static validation and wraps failures in
// pipeline.ErrConfig.
func checkConfig(cfg *config.Config) error {
	if errs := config.Validate(cfg); len(errs) > 0 {
		return fmt.Errorf("%w: %w", pipeline.ErrConfig, errs)
	}
	return nil
}

// validator is the per-run check: static validation first, then, when
// enabled, a live check of the API key and assistant.
func validator(cfg *config.Config) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if errs := config.Validate(cfg); len(errs) > 0 {
			return errs
		}
		if !cfg.OpenAI.Verify {
			return nil
		}
		ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
		defer cancel()
		client := openai.New(&llm.Config{BaseURL: cfg.OpenAI.BaseURL, APIKey: cfg.OpenAI.APIKey, Timeout: verifyTimeout})
		return llm.Verify(ctx, client, cfg.OpenAI.AssistantID)
	}
}

func naming(cfg *config.Config) calendar.Naming {
	return calendar.Naming{
		OutputPrefix: cfg.Repo.OutputPrefix,
		OutputExt:    cfg.Repo.OutputExt,
		FlagPrefix:   cfg.Repo.FlagPrefix,
		FlagExt:      cfg.Repo.FlagExt,
	}
}

func repoName(cfg *config.Config) string {
	if cfg.Repo.Name != "" {
		return cfg.Repo.Name
	}
	abs, err := filepath.Abs(cfg.Repo.Dir)
	if err != nil {
		return cfg.Repo.Dir
	}
	return filepath.Base(abs)
}

func newStore(cfg *config.Config) *ledger.GitStore {
	return ledger.NewGitStore(&ledger.ExecGit{}, cfg.Repo.Dir, cfg.Repo.Remote, cfg.Repo.Branch,
		ledger.WithAuthor(cfg.Repo.AuthorName, cfg.Repo.AuthorEmail))
}

// newMailer routes telegram:<chat_id> recipients to the bot and everything
// else to SMTP.
func newMailer(cfg *config.Config) delivery.Mailer {
	reg := delivery.NewRegistry()
	if cfg.Telegram.Token != "" {
		telegram.New(cfg.Telegram.Token).Register(reg)
	}

	var fallback delivery.Mailer
	if cfg.SMTP.Host != "" {
		fallback = delivery.NewSMTPMailer(delivery.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.Mail.From,
		}, gateway.DefaultRetryPolicy())
	}
	return delivery.NewDispatcher(reg, fallback)
}

// buildRunner wires the pipeline from cfg. The caller must have validated
// cfg already.
func buildRunner(cfg *config.Config) (*pipeline.Runner, *state.RunStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}

	cal, err := calendar.New(cfg.Timezone, nil)
	if err != nil {
		return nil, nil, err
	}

	tokens, err := delivery.NewTokenCounter(tokenizerModel)
	if err != nil {
		slog.Warn("token counts disabled", "error", err)
	}

	gen := &generator.Command{
		Template: cfg.Generator.Command,
		Count:    cfg.Generator.Count,
		Dir:      cfg.Repo.Dir,
		Timeout:  time.Duration(cfg.Generator.TimeoutSeconds) * time.Second,
		Env: map[string]string{
			"TZ":             cal.Location().String(),
			"OPENAI_API_KEY": cfg.OpenAI.APIKey,
			"ASSISTANT_ID":   cfg.OpenAI.AssistantID,
		},
	}

	journal := state.NewRunStore(cfg.DataDir)
	runner := &pipeline.Runner{
		Store:        newStore(cfg),
		Generator:    gen,
		Mailer:       newMailer(cfg),
		Calendar:     cal,
		Naming:       naming(cfg),
		SendHour:     cfg.SendHour,
		Recipients:   cfg.Recipients(),
		Subject:      cfg.Mail.Subject,
		RepoName:     repoName(cfg),
		Tokens:       tokens,
		Journal:      journal,
		Lock:         gateway.NewLock(filepath.Join(cfg.DataDir, "genmjp.lock")),
		Validate:     validator(cfg),
		SweepTimeout: time.Duration(cfg.SweepTimeoutSeconds) * time.Second,
	}

	if cfg.Archive.Endpoint != "" {
		mirror, err := archive.New(archive.Config{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Region:    cfg.Archive.Region,
			Bucket:    cfg.Archive.Bucket,
			Prefix:    cfg.Archive.Prefix,
			UseSSL:    cfg.Archive.UseSSL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create archive mirror: %w", err)
		}
		runner.Archive = mirror
	}

	return runner, journal, nil
}
