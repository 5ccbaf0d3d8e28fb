package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jkpraja/genMJP/pkg/llm"
)

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(&llm.Config{BaseURL: server.URL + "/v1", APIKey: "sk-test"})
}

func TestListModels(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("expected path '/v1/models', got %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Error("missing or invalid auth header")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"id": "gpt-4o", "owned_by": "openai"},
				{"id": "gpt-4o-mini", "owned_by": "openai"},
			},
		})
	})

	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != 2 || models[0].ID != "gpt-4o" {
		t.Errorf("unexpected models %+v", models)
	}
}

func TestRetrieveAssistant(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/assistants/asst_abc" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("OpenAI-Beta") != "assistants=v2" {
			t.Errorf("expected assistants=v2 beta header, got %q", r.Header.Get("OpenAI-Beta"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "asst_abc",
			"name":  "Prompt Writer",
			"model": "gpt-4o",
		})
	})

	a, err := client.RetrieveAssistant(context.Background(), "asst_abc")
	if err != nil {
		t.Fatal(err)
	}
	if a.Name != "Prompt Writer" || a.Model != "gpt-4o" {
		t.Errorf("unexpected assistant %+v", a)
	}
}

func TestAPIErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, llm.ErrUnauthorized},
		{http.StatusForbidden, llm.ErrUnauthorized},
		{http.StatusNotFound, llm.ErrNotFound},
	}
	for _, tt := range tests {
		client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
		})

		_, err := client.RetrieveAssistant(context.Background(), "asst_missing")
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: expected %v, got %v", tt.status, tt.want, err)
		}
		var apiErr *llm.APIError
		if !errors.As(err, &apiErr) || apiErr.Message != "nope" {
			t.Errorf("status %d: expected APIError with message, got %v", tt.status, err)
		}
	}
}

func TestServerErrorIsNotSentinel(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	_, err := client.ListModels(context.Background())
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
	if errors.Is(err, llm.ErrUnauthorized) || errors.Is(err, llm.ErrNotFound) {
		t.Errorf("502 should not map to a sentinel: %v", err)
	}
}

func TestVerify(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models":
			w.Write([]byte(`{"object":"list","data":[]}`))
		case "/v1/assistants/asst_ok":
			w.Write([]byte(`{"id":"asst_ok"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"message":"No assistant found"}}`))
		}
	})

	if err := llm.Verify(context.Background(), client, "asst_ok"); err != nil {
		t.Fatalf("expected verification to pass: %v", err)
	}
	err := llm.Verify(context.Background(), client, "asst_gone")
	if !errors.Is(err, llm.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClientSatisfiesVerifier(t *testing.T) {
	var _ llm.Verifier = (*Client)(nil)
}
