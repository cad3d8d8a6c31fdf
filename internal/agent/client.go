package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atessari/diaforge/pkg/schema"
)

const defaultAgentTimeout = 60 * time.Second

// ClientConfig configures the HTTP agent client.
type ClientConfig struct {
	// Endpoint is the base URL of an OpenAI-compatible chat completions API,
	// e.g. "https://api.openai.com/v1".
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

// NewClient creates an HTTP agent client with defaults applied.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultAgentTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete implements Agent over a single chat completion call.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeAgent, "marshal request: %v", err).WithCause(err)
	}

	url := strings.TrimRight(c.cfg.Endpoint, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeAgent, "build request: %v", err).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeAgent, "agent call failed: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeAgent, "read response: %v", err).WithCause(err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeAgent, "decode response (status %d): %v", resp.StatusCode, err).WithCause(err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", schema.NewErrorf(schema.ErrCodeAgent, "agent call failed: %s", msg)
	}
	if len(parsed.Choices) == 0 {
		return "", schema.NewError(schema.ErrCodeAgent, "agent returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
