// Package openai submits compliance prompts to the OpenAI chat completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/complycheck/complycheck/internal/config"
)

const baseURL = "https://api.openai.com/v1"

var (
	ErrUnreachable = errors.New("openai unreachable")
	ErrTimeout     = errors.New("openai request timeout")
	ErrAPIError    = errors.New("openai api error")
)

// Client calls the chat completions endpoint with JSON-object response format.
type Client struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

func NewClient(cfg config.OpenAIConfig) *Client {
	return &Client{cfg: cfg, client: &http.Client{}}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) Complete(ctx context.Context, prompt string, evidence []string, model string) (string, string, error) {
	if model == "" {
		model = c.cfg.Model
	}

	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "user", Content: withEvidence(prompt, evidence)},
		},
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return "", "", fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", "", classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", "", fmt.Errorf("decoding openai response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", "", fmt.Errorf("%w: empty choices", ErrAPIError)
	}

	return chatResp.Choices[0].Message.Content, chatResp.Model, nil
}

func withEvidence(prompt string, evidence []string) string {
	if len(evidence) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nEvidence attachments:\n")
	for _, e := range evidence {
		b.WriteString("- ")
		b.WriteString(e)
		b.WriteString("\n")
	}
	return b.String()
}

func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}
