package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"voicestack.local/voicegate/internal/faults"
)

const whisperInferencePath = "/inference"

type WhisperOption func(*WhisperClient)

// WhisperClient talks to a whisper.cpp server: multipart audio upload in,
// JSON transcript out.
type WhisperClient struct {
	baseURL string
	client  *http.Client
}

func NewWhisperClient(baseURL string, opts ...WhisperOption) *WhisperClient {
	c := &WhisperClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func WithWhisperHTTPClient(client *http.Client) WhisperOption {
	return func(c *WhisperClient) {
		if client != nil {
			c.client = client
		}
	}
}

var _ Transcriber = (*WhisperClient)(nil)

func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	format, err := validateAudio(audio)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "utterance."+format)
	if err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write multipart body: %w", err)
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("write multipart field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+whisperInferencePath, &body)
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("content-type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", classifyTransportError("whisper", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		message := strings.TrimSpace(string(raw))
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusBadGateway {
			return "", fmt.Errorf("%w: whisper status %d: %s", faults.ErrGatewayUnavailable, resp.StatusCode, message)
		}
		return "", fmt.Errorf("whisper status %d: %s", resp.StatusCode, message)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: whisper: decode response: %v", faults.ErrMalformedResponse, err)
	}

	text := strings.TrimSpace(parsed.Text)
	if text == "" {
		return "", fmt.Errorf("%w: whisper: response contained no text", faults.ErrMalformedResponse)
	}
	return text, nil
}
