package model

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voicestack.local/voicegate/internal/faults"
)

func TestOllamaCompleteSuccess(t *testing.T) {
	var seen ollamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/api/chat" {
			t.Fatalf("expected /api/chat, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&seen); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(ollamaResponse{
			Model:           "llama3",
			Message:         ollamaMessage{Role: "assistant", Content: "pong"},
			Done:            true,
			PromptEvalCount: 12,
			EvalCount:       4,
		})
	}))
	defer server.Close()

	provider := NewOllamaProvider(
		WithOllamaBaseURL(server.URL),
		WithOllamaHTTPClient(server.Client()),
	)

	resp, err := provider.Complete(context.Background(), CompletionRequest{
		Model:        "llama3",
		SystemPrompt: "You are concise.",
		Messages: []Message{
			{Role: RoleUser, Content: "ping"},
		},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if seen.Model != "llama3" {
		t.Fatalf("unexpected model: %s", seen.Model)
	}
	if seen.Stream {
		t.Fatalf("expected stream=false")
	}
	if len(seen.Messages) != 2 {
		t.Fatalf("expected system + user messages, got %d", len(seen.Messages))
	}
	if seen.Messages[0].Role != "system" || seen.Messages[0].Content != "You are concise." {
		t.Fatalf("unexpected system message: %+v", seen.Messages[0])
	}
	if resp.Content != "pong" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 4 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
}

func TestOllamaCompleteUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	provider := NewOllamaProvider(WithOllamaBaseURL(server.URL))
	_, err := provider.Complete(context.Background(), CompletionRequest{
		Model:    "llama3",
		Messages: []Message{{Role: RoleUser, Content: "ping"}},
	})
	if err == nil {
		t.Fatalf("expected error for closed server")
	}
	if !errors.Is(err, faults.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestOllamaCompleteTimeout(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	provider := NewOllamaProvider(WithOllamaBaseURL(server.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := provider.Complete(ctx, CompletionRequest{
		Model:    "llama3",
		Messages: []Message{{Role: RoleUser, Content: "ping"}},
	})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !errors.Is(err, faults.ErrGatewayTimeout) {
		t.Fatalf("expected ErrGatewayTimeout, got %v", err)
	}
}

func TestOllamaCompleteMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	provider := NewOllamaProvider(WithOllamaBaseURL(server.URL), WithOllamaHTTPClient(server.Client()))
	_, err := provider.Complete(context.Background(), CompletionRequest{
		Model:    "llama3",
		Messages: []Message{{Role: RoleUser, Content: "ping"}},
	})
	if err == nil {
		t.Fatalf("expected malformed response error")
	}
	if !errors.Is(err, faults.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestOllamaCompleteEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaResponse{
			Model:   "llama3",
			Message: ollamaMessage{Role: "assistant", Content: "   "},
			Done:    true,
		})
	}))
	defer server.Close()

	provider := NewOllamaProvider(WithOllamaBaseURL(server.URL), WithOllamaHTTPClient(server.Client()))
	_, err := provider.Complete(context.Background(), CompletionRequest{
		Model:    "llama3",
		Messages: []Message{{Role: RoleUser, Content: "ping"}},
	})
	if !errors.Is(err, faults.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse for empty content, got %v", err)
	}
}

func TestOllamaCompleteRequiresModel(t *testing.T) {
	provider := NewOllamaProvider()
	_, err := provider.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "ping"}},
	})
	if err == nil {
		t.Fatalf("expected error for missing model")
	}
}
