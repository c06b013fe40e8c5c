package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voicestack.local/voicegate/internal/faults"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	ollamaChatPath       = "/api/chat"
)

type OllamaOption func(*OllamaProvider)

// OllamaProvider talks to a local Ollama runtime over its chat API.
type OllamaProvider struct {
	baseURL string
	client  *http.Client
}

func NewOllamaProvider(opts ...OllamaOption) *OllamaProvider {
	provider := &OllamaProvider{
		baseURL: defaultOllamaBaseURL,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	return provider
}

func WithOllamaBaseURL(baseURL string) OllamaOption {
	return func(p *OllamaProvider) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			p.baseURL = trimmed
		}
	}
}

func WithOllamaHTTPClient(client *http.Client) OllamaOption {
	return func(p *OllamaProvider) {
		if client != nil {
			p.client = client
		}
	}
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int64         `json:"prompt_eval_count"`
	EvalCount       int64         `json:"eval_count"`
	Error           string        `json:"error"`
}

var _ Provider = (*OllamaProvider)(nil)

func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if strings.TrimSpace(req.Model) == "" {
		return CompletionResponse{}, errors.New("model is required")
	}

	messages := make([]ollamaMessage, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.SystemPrompt) != "" {
		messages = append(messages, ollamaMessage{Role: string(RoleSystem), Content: req.SystemPrompt})
	}
	for _, message := range req.Messages {
		role := strings.ToLower(strings.TrimSpace(string(message.Role)))
		switch role {
		case string(RoleUser), string(RoleAssistant), string(RoleSystem):
			messages = append(messages, ollamaMessage{Role: role, Content: message.Content})
		default:
			return CompletionResponse{}, fmt.Errorf("unsupported message role: %s", message.Role)
		}
	}
	if len(messages) == 0 {
		return CompletionResponse{}, errors.New("at least one message is required")
	}

	payload := ollamaRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   false,
	}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		payload.Options = &ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+ollamaChatPath, bytes.NewReader(body))
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("build ollama request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return CompletionResponse{}, classifyTransportError("ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return CompletionResponse{}, parseOllamaAPIError(resp)
	}

	var parsed ollamaResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return CompletionResponse{}, malformed("ollama", fmt.Sprintf("decode response: %v", err))
	}
	if strings.TrimSpace(parsed.Error) != "" {
		return CompletionResponse{}, malformed("ollama", parsed.Error)
	}

	content := strings.TrimSpace(parsed.Message.Content)
	if content == "" {
		return CompletionResponse{}, malformed("ollama", "response contained no content")
	}

	modelName := parsed.Model
	if modelName == "" {
		modelName = req.Model
	}

	return CompletionResponse{
		Content: content,
		Usage: Usage{
			InputTokens:  parsed.PromptEvalCount,
			OutputTokens: parsed.EvalCount,
		},
		Model: modelName,
	}, nil
}

func parseOllamaAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	message := strings.TrimSpace(string(body))
	if len(body) > 0 {
		var parsed struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &parsed); err == nil && strings.TrimSpace(parsed.Error) != "" {
			message = parsed.Error
		}
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusBadGateway {
		return fmt.Errorf("%w: ollama api status %d: %s", faults.ErrGatewayUnavailable, resp.StatusCode, message)
	}
	return fmt.Errorf("ollama api status %d: %s", resp.StatusCode, message)
}
