package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Message is one delivery of a dated output file.
type Message struct {
	To         []string
	Subject    string
	Body       string
	Attachment string // absolute path, empty for none
}

// Mailer sends a message to every address in Message.To. A nil error
// means every recipient was handed to its transport.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MailerFunc adapts a function to Mailer.
type MailerFunc func(ctx context.Context, msg Message) error

func (f MailerFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Dispatcher splits recipients between prefixed handlers in the registry
// and a fallback mailer that receives all remaining addresses in a single
// message.
type Dispatcher struct {
	registry *Registry
	fallback Mailer
}

func NewDispatcher(registry *Registry, fallback Mailer) *Dispatcher {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Dispatcher{registry: registry, fallback: fallback}
}

// Send delivers msg to all recipients and joins every failure. The send only
// counts as successful when all recipients succeeded.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("no recipients")
	}

	var plain []string
	var errs []error
	for _, to := range msg.To {
		handler, ok := d.registry.Lookup(to)
		if !ok {
			plain = append(plain, to)
			continue
		}
		if err := handler(ctx, to, msg); err != nil {
			slog.Warn("delivery failed", "recipient", to, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", to, err))
		}
	}

	if len(plain) > 0 {
		if d.fallback == nil {
			errs = append(errs, fmt.Errorf("no mailer configured for %v", plain))
		} else {
			out := msg
			out.To = plain
			if err := d.fallback.Send(ctx, out); err != nil {
				errs = append(errs, fmt.Errorf("smtp: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}
