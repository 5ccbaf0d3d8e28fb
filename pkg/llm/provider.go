package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Verifier is the part of an OpenAI-compatible API needed to prove that a
// key is live and that the assistant the generator will use exists.
type Verifier interface {
	// ListModels lists the models visible to the key.
	ListModels(ctx context.Context) ([]Model, error)

	// RetrieveAssistant fetches one assistant by id.
	RetrieveAssistant(ctx context.Context, id string) (*Assistant, error)
}

// Config holds connection settings for a Verifier.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

var (
	ErrUnauthorized = errors.New("credentials rejected")
	ErrNotFound     = errors.New("not found")
)

// Verify checks the key and then the assistant. The returned error wraps
// ErrUnauthorized or ErrNotFound when the API answered with 401/403 or 404.
func Verify(ctx context.Context, v Verifier, assistantID string) error {
	if _, err := v.ListModels(ctx); err != nil {
		return fmt.Errorf("verify api key: %w", err)
	}
	a, err := v.RetrieveAssistant(ctx, assistantID)
	if err != nil {
		return fmt.Errorf("verify assistant %s: %w", assistantID, err)
	}
	if a.ID != assistantID {
		return fmt.Errorf("verify assistant %s: api returned %q", assistantID, a.ID)
	}
	return nil
}
