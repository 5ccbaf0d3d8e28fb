package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	mail "github.com/wneessen/go-mail"

	"github.com/jkpraja/genMJP/internal/gateway"
)

// SMTPConfig holds server and sender settings for SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPMailer sends messages with go-mail. Port 465 uses implicit TLS, any
// other port requires STARTTLS.
type SMTPMailer struct {
	cfg   SMTPConfig
	retry *gateway.RetryPolicy
	dial  func(ctx context.Context, c *mail.Client, m *mail.Msg) error
}

func NewSMTPMailer(cfg SMTPConfig, retry *gateway.RetryPolicy) *SMTPMailer {
	if retry == nil {
		retry = gateway.DefaultRetryPolicy()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPMailer{
		cfg:   cfg,
		retry: retry,
		dial: func(ctx context.Context, c *mail.Client, m *mail.Msg) error {
			return c.DialAndSendWithContext(ctx, m)
		},
	}
}

// Build assembles the MIME message for msg.
func (s *SMTPMailer) Build(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("set sender: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("set recipients: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	if msg.Attachment != "" {
		if _, err := os.Stat(msg.Attachment); err != nil {
			return nil, fmt.Errorf("attachment: %w", err)
		}
		m.AttachFile(msg.Attachment)
	}
	return m, nil
}

func (s *SMTPMailer) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.Username),
		mail.WithPassword(s.cfg.Password),
		mail.WithTimeout(s.cfg.Timeout),
	}
	if s.cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	return mail.NewClient(s.cfg.Host, opts...)
}

// Send builds the message once and dials with retries on transient errors.
func (s *SMTPMailer) Send(ctx context.Context, msg Message) error {
	m, err := s.Build(msg)
	if err != nil {
		return err
	}
	c, err := s.client()
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	attempt := 0
	return s.retry.Execute(ctx, func(ctx context.Context) error {
		attempt++
		err := s.dial(ctx, c, m)
		if err != nil {
			slog.Warn("smtp send failed", "host", s.cfg.Host, "attempt", attempt, "error", err)
			return err
		}
		slog.Info("smtp send ok", "host", s.cfg.Host, "recipients", len(msg.To))
		return nil
	})
}
