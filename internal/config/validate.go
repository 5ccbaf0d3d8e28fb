package config

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"
)

// APIKeyPrefix is the prefix every OpenAI secret key carries.
const APIKeyPrefix = "sk-"

// TelegramPrefix marks a recipient delivered through the Telegram bot
// instead of SMTP.
const TelegramPrefix = "telegram:"

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in one pass.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Validate checks everything a run needs before any side effect happens.
// It returns nil when cfg is usable.
func Validate(cfg *Config) ValidationErrors {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch {
	case cfg.OpenAI.APIKey == "":
		add("openai.api_key", "required (set OPENAI_API_KEY)")
	case !strings.HasPrefix(cfg.OpenAI.APIKey, APIKeyPrefix):
		add("openai.api_key", "must start with %q", APIKeyPrefix)
	}
	if cfg.OpenAI.AssistantID == "" {
		add("openai.assistant_id", "required (set ASSISTANT_ID)")
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil || cfg.Timezone == "" {
		add("timezone", "unknown timezone %q", cfg.Timezone)
	}
	if cfg.SendHour < 0 || cfg.SendHour > 23 {
		add("send_hour", "must be between 0 and 23, got %d", cfg.SendHour)
	}
	if cfg.SweepTimeoutSeconds < 0 {
		add("sweep_timeout_seconds", "must not be negative")
	}

	if strings.TrimSpace(cfg.Generator.Command) == "" {
		add("generator.command", "required")
	}
	if cfg.Generator.Count <= 0 {
		add("generator.count", "must be positive, got %d", cfg.Generator.Count)
	}
	if cfg.Generator.TimeoutSeconds < 0 {
		add("generator.timeout_seconds", "must not be negative")
	}

	if cfg.Repo.Dir == "" {
		add("repo.dir", "required")
	}
	if cfg.Repo.OutputPrefix == "" || cfg.Repo.FlagPrefix == "" {
		add("repo", "output_prefix and flag_prefix are required")
	} else if cfg.Repo.OutputPrefix+cfg.Repo.OutputExt == cfg.Repo.FlagPrefix+cfg.Repo.FlagExt {
		add("repo", "output and flag names must differ")
	}

	errs = append(errs, validateDelivery(cfg)...)

	if cfg.Archive.Endpoint != "" {
		if strings.Contains(cfg.Archive.Endpoint, "://") {
			add("archive.endpoint", "must be host[:port] without a scheme")
		}
		if cfg.Archive.Bucket == "" {
			add("archive.bucket", "required when archive.endpoint is set")
		}
		if cfg.Archive.AccessKey == "" || cfg.Archive.SecretKey == "" {
			add("archive", "access_key and secret_key are required when archive.endpoint is set")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validateDelivery(cfg *Config) ValidationErrors {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	recipients := cfg.Recipients()
	if len(recipients) == 0 {
		add("mail.to", "at least one recipient is required (set EMAIL_TO)")
	}

	needSMTP := len(recipients) == 0
	for _, r := range recipients {
		if chat, ok := strings.CutPrefix(r, TelegramPrefix); ok {
			if _, err := strconv.ParseInt(chat, 10, 64); err != nil {
				add("mail.to", "invalid telegram chat id %q", chat)
			}
			if cfg.Telegram.Token == "" {
				add("telegram.token", "required for recipient %q", r)
			}
			continue
		}
		needSMTP = true
		if _, err := mail.ParseAddress(r); err != nil {
			add("mail.to", "invalid address %q", r)
		}
	}
	if !needSMTP {
		return errs
	}

	if cfg.SMTP.Host == "" {
		add("smtp.host", "required (set SMTP_HOST)")
	}
	if cfg.SMTP.Port <= 0 || cfg.SMTP.Port > 65535 {
		add("smtp.port", "must be a valid port (set SMTP_PORT)")
	}
	if cfg.SMTP.Username == "" {
		add("smtp.username", "required (set SMTP_USERNAME)")
	}
	if cfg.SMTP.Password == "" {
		add("smtp.password", "required (set SMTP_PASSWORD)")
	}
	if cfg.Mail.From == "" {
		add("mail.from", "required (set EMAIL_FROM)")
	} else if _, err := mail.ParseAddress(cfg.Mail.From); err != nil {
		add("mail.from", "invalid address %q", cfg.Mail.From)
	}
	return errs
}
