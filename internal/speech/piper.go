package speech

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

const maxSynthesisBytes = 32 << 20

type PiperOption func(*PiperClient)

// PiperClient talks to a piper HTTP server: JSON text in, WAV bytes out.
type PiperClient struct {
	baseURL string
	voice   string
	client  *http.Client
}

func NewPiperClient(baseURL string, opts ...PiperOption) *PiperClient {
	c := &PiperClient{
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

func WithPiperVoice(voice string) PiperOption {
	return func(c *PiperClient) {
		c.voice = strings.TrimSpace(voice)
	}
}

func WithPiperHTTPClient(client *http.Client) PiperOption {
	return func(c *PiperClient) {
		if client != nil {
			c.client = client
		}
	}
}

var _ Synthesizer = (*PiperClient)(nil)

func (c *PiperClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text is required")
	}

	payload := map[string]string{"text": text}
	if c.voice != "" {
		payload["voice"] = c.voice
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("content-type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransportError("piper", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		message := strings.TrimSpace(string(raw))
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusBadGateway {
			return nil, fmt.Errorf("%w: piper status %d: %s", faults.ErrGatewayUnavailable, resp.StatusCode, message)
		}
		return nil, fmt.Errorf("piper status %d: %s", resp.StatusCode, message)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxSynthesisBytes))
	if err != nil {
		return nil, classifyTransportError("piper", err)
	}
	if _, ok := DetectFormat(audio); !ok {
		return nil, fmt.Errorf("%w: piper: response is not audio", faults.ErrMalformedResponse)
	}
	return audio, nil
}
