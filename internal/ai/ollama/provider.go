// Package ollama submits compliance prompts to a local Ollama instance.
package ollama

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

var (
	ErrUnreachable = errors.New("ollama unreachable")
	ErrTimeout     = errors.New("ollama request timeout")
)

// Client calls Ollama's generate API with JSON-mode output.
type Client struct {
	cfg    config.OllamaConfig
	client *http.Client
}

func NewClient(cfg config.OllamaConfig) *Client {
	return &Client{cfg: cfg, client: &http.Client{}}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Format string `json:"format"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
}

func (c *Client) Complete(ctx context.Context, prompt string, evidence []string, model string) (string, string, error) {
	if model == "" {
		model = c.cfg.Model
	}

	body, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: withEvidence(prompt, evidence),
		Format: "json",
		Stream: false,
	})
	if err != nil {
		return "", "", fmt.Errorf("encoding request: %w", err)
	}

	u := c.cfg.BaseURL + "/api/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", "", classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", "", fmt.Errorf("decoding ollama response: %w", err)
	}

	return genResp.Response, genResp.Model, nil
}

// withEvidence appends evidence references to the prompt. Ollama has no
// attachment channel, so references travel inline.
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

// classifyError maps transport-level errors to sentinel errors.
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
