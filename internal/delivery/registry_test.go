// internal/delivery/registry_test.go
package delivery

import (
	"context"
	"testing"
)

func TestRegistryDeliver(t *testing.T) {
	reg := NewRegistry()

	var gotTo string
	var gotMsg Message
	reg.Register("test:", func(ctx context.Context, recipient string, msg Message) error {
		gotTo, gotMsg = recipient, msg
		return nil
	})

	if err := reg.Deliver(context.Background(), "test:123", Message{Subject: "hello"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotTo != "test:123" {
		t.Errorf("expected recipient %q, got %q", "test:123", gotTo)
	}
	if gotMsg.Subject != "hello" {
		t.Errorf("expected subject %q, got %q", "hello", gotMsg.Subject)
	}
}

func TestRegistryNoHandler(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Deliver(context.Background(), "unknown:123", Message{}); err == nil {
		t.Fatal("expected error for unregistered prefix, got nil")
	}
}

func TestRegistryLongestPrefixWins(t *testing.T) {
	reg := NewRegistry()

	var hit string
	reg.Register("tg:", func(ctx context.Context, recipient string, msg Message) error {
		hit = "short"
		return nil
	})
	reg.Register("tg:group:", func(ctx context.Context, recipient string, msg Message) error {
		hit = "long"
		return nil
	})

	reg.Deliver(context.Background(), "tg:group:1", Message{})
	if hit != "long" {
		t.Errorf("expected longest prefix handler, got %s", hit)
	}
	reg.Deliver(context.Background(), "tg:1", Message{})
	if hit != "short" {
		t.Errorf("expected short prefix handler, got %s", hit)
	}
}
