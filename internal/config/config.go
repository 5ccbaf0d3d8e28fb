package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir             string `json:"data_dir" yaml:"data_dir"`
	LogLevel            string `json:"log_level" yaml:"log_level"`
	Timezone            string `json:"timezone" yaml:"timezone"`
	Schedule            string `json:"schedule" yaml:"schedule"`
	SendHour            int    `json:"send_hour" yaml:"send_hour"`
	SweepTimeoutSeconds int    `json:"sweep_timeout_seconds" yaml:"sweep_timeout_seconds"`
	CredentialsFile     string `json:"credentials_file" yaml:"credentials_file"`
	OpenAI              struct {
		BaseURL     string `json:"base_url" yaml:"base_url"`
		APIKey      string `json:"api_key" yaml:"api_key"`
		AssistantID string `json:"assistant_id" yaml:"assistant_id"`
		Verify      bool   `json:"verify" yaml:"verify"`
	} `json:"openai" yaml:"openai"`
	Generator struct {
		Command        string `json:"command" yaml:"command"`
		Count          int    `json:"count" yaml:"count"`
		TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
	} `json:"generator" yaml:"generator"`
	Repo struct {
		Dir          string `json:"dir" yaml:"dir"`
		Name         string `json:"name" yaml:"name"`
		Remote       string `json:"remote" yaml:"remote"`
		Branch       string `json:"branch" yaml:"branch"`
		AuthorName   string `json:"author_name" yaml:"author_name"`
		AuthorEmail  string `json:"author_email" yaml:"author_email"`
		OutputPrefix string `json:"output_prefix" yaml:"output_prefix"`
		OutputExt    string `json:"output_ext" yaml:"output_ext"`
		FlagPrefix   string `json:"flag_prefix" yaml:"flag_prefix"`
		FlagExt      string `json:"flag_ext" yaml:"flag_ext"`
	} `json:"repo" yaml:"repo"`
	SMTP struct {
		Host     string `json:"host" yaml:"host"`
		Port     int    `json:"port" yaml:"port"`
		Username string `json:"username" yaml:"username"`
		Password string `json:"password" yaml:"password"`
	} `json:"smtp" yaml:"smtp"`
	Mail struct {
		From    string `json:"from" yaml:"from"`
		To      string `json:"to" yaml:"to"`
		Subject string `json:"subject" yaml:"subject"`
	} `json:"mail" yaml:"mail"`
	Telegram struct {
		Token string `json:"token" yaml:"token"`
	} `json:"telegram" yaml:"telegram"`
	HTTP struct {
		Enabled bool   `json:"enabled" yaml:"enabled"`
		Listen  string `json:"listen" yaml:"listen"`
	} `json:"http" yaml:"http"`
	Archive struct {
		Endpoint  string `json:"endpoint" yaml:"endpoint"`
		AccessKey string `json:"access_key" yaml:"access_key"`
		SecretKey string `json:"secret_key" yaml:"secret_key"`
		Region    string `json:"region" yaml:"region"`
		Bucket    string `json:"bucket" yaml:"bucket"`
		Prefix    string `json:"prefix" yaml:"prefix"`
		UseSSL    bool   `json:"use_ssl" yaml:"use_ssl"`
	} `json:"archive" yaml:"archive"`
}

// Recipients splits mail.to on commas.
func (c *Config) Recipients() []string {
	var out []string
	for _, r := range strings.Split(c.Mail.To, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// CredentialsPath resolves credentials_file against the repository dir.
func (c *Config) CredentialsPath() string {
	if c.CredentialsFile == "" || filepath.IsAbs(c.CredentialsFile) {
		return c.CredentialsFile
	}
	return filepath.Join(c.Repo.Dir, c.CredentialsFile)
}

// Defaults returns a config with every default applied.
func Defaults() *Config {
	cfg := &Config{
		DataDir:             filepath.Join(os.Getenv("HOME"), ".genmjp"),
		LogLevel:            "info",
		Timezone:            "Asia/Bangkok",
		Schedule:            "*/30 * * * *",
		SendHour:            4,
		SweepTimeoutSeconds: 300,
		CredentialsFile:     "config.txt",
	}
	cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	cfg.OpenAI.Verify = true
	cfg.Generator.Command = "python generate_prompts.py -n {count}"
	cfg.Generator.Count = 500
	cfg.Repo.Dir = "."
	cfg.Repo.Remote = "origin"
	cfg.Repo.Branch = "main"
	cfg.Repo.AuthorName = "genmjp"
	cfg.Repo.AuthorEmail = "genmjp@users.noreply.github.com"
	cfg.Repo.OutputPrefix = "midjourney_prompts_"
	cfg.Repo.OutputExt = ".txt"
	cfg.Repo.FlagPrefix = "email_sent_"
	cfg.Repo.FlagExt = ".flag"
	cfg.SMTP.Port = 465
	cfg.Mail.Subject = "Midjourney Prompts - {date}"
	cfg.HTTP.Listen = "127.0.0.1:8089"
	cfg.Archive.Region = "us-east-1"
	return cfg
}

// Load reads the config file, writing defaults when it does not exist, then
// applies the credentials file and finally the environment (highest
// precedence).
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := unmarshal(path, data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	if credPath := cfg.CredentialsPath(); credPath != "" {
		creds, err := godotenv.Read(credPath)
		if err == nil {
			applyOverrides(cfg, func(key string) string { return creds[key] })
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read credentials file %s: %w", credPath, err)
		}
	}

	applyOverrides(cfg, os.Getenv)
	return cfg, nil
}

// applyOverrides copies well-known variables into cfg. Empty values are
// ignored.
func applyOverrides(cfg *Config, lookup func(string) string) {
	set := func(key string, dst *string) {
		if v := lookup(key); v != "" {
			*dst = v
		}
	}
	set("OPENAI_API_KEY", &cfg.OpenAI.APIKey)
	set("OPENAI_BASE_URL", &cfg.OpenAI.BaseURL)
	set("ASSISTANT_ID", &cfg.OpenAI.AssistantID)
	set("SMTP_HOST", &cfg.SMTP.Host)
	set("SMTP_USERNAME", &cfg.SMTP.Username)
	set("SMTP_PASSWORD", &cfg.SMTP.Password)
	set("EMAIL_FROM", &cfg.Mail.From)
	set("EMAIL_TO", &cfg.Mail.To)
	set("TELEGRAM_BOT_TOKEN", &cfg.Telegram.Token)
	set("GENMJP_TIMEZONE", &cfg.Timezone)
	set("MINIO_ACCESS_KEY", &cfg.Archive.AccessKey)
	set("MINIO_SECRET_KEY", &cfg.Archive.SecretKey)
	if v := lookup("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.SMTP.Port = port
		} else {
			// Keep the bad value visible to Validate.
			cfg.SMTP.Port = -1
		}
	}
}

// Save writes cfg to path atomically in the format implied by its extension.
func Save(path string, cfg *Config) error {
	return writeDefaults(path, cfg)
}

func writeDefaults(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := marshal(path, cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func marshal(path string, v any) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(v)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func unmarshal(path string, data []byte, v any) error {
	if isYAML(path) {
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("parse config YAML: %w", err)
		}
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse config JSON: %w", err)
	}
	return nil
}

// ToMap converts cfg to a nested generic map via its JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues flattens cfg to dot-separated keys, masking secrets on request.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue returns the value stored under a dot-separated key in the config
// file at path. A missing file is created with defaults first.
func GetValue(path, key string) (any, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefaults(path, Defaults()); err != nil {
			return nil, err
		}
	}
	raw, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(raw)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue stores value under key in the existing config file at path.
// Values that parse as JSON (numbers, booleans) keep their type.
func SetValue(path, key, value string) error {
	raw, err := readRaw(path)
	if err != nil {
		return err
	}

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}

	flat := Flatten(raw)
	flat[key] = parsed
	data, err := marshal(path, Unflatten(flat))
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, data)
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	raw := make(map[string]any)
	if err := unmarshal(path, data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
