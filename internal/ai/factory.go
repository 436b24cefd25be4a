package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/complycheck/complycheck/internal/ai/anthropic"
	"github.com/complycheck/complycheck/internal/ai/ollama"
	"github.com/complycheck/complycheck/internal/ai/openai"
	"github.com/complycheck/complycheck/internal/config"
	"github.com/complycheck/complycheck/pkg/models"
)

// completer is the transport contract each provider package satisfies: submit
// a prompt plus evidence references, get raw model text back.
type completer interface {
	Complete(ctx context.Context, prompt string, evidence []string, model string) (text string, usedModel string, err error)
}

// verdictProvider adapts a completer into models.InferenceProvider by parsing
// the raw output into a structured verdict. Each provider package carries its
// own transport sentinels; timeoutErr and unreachableErr let Evaluate map them
// onto this package's uniform sentinels.
type verdictProvider struct {
	name           string
	completer      completer
	timeoutErr     error
	unreachableErr error
}

func (p *verdictProvider) Name() string { return p.name }

func (p *verdictProvider) Evaluate(ctx context.Context, req models.InferenceRequest) (models.InferenceResponse, error) {
	raw, usedModel, err := p.completer.Complete(ctx, req.Prompt, req.Evidence, req.Model)
	if err != nil {
		return models.InferenceResponse{}, p.classify(err)
	}

	verdict, err := ExtractVerdict(raw)
	if err != nil {
		return models.InferenceResponse{}, err
	}

	return models.InferenceResponse{
		Model:  usedModel,
		Raw:    raw,
		Parsed: verdict,
	}, nil
}

func (p *verdictProvider) classify(err error) error {
	switch {
	case p.timeoutErr != nil && errors.Is(err, p.timeoutErr):
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	case p.unreachableErr != nil && errors.Is(err, p.unreachableErr):
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	default:
		return err
	}
}

// NewProvider constructs the appropriate AI provider based on config.
// Called once at server startup.
func NewProvider(cfg config.AIConfig) (models.InferenceProvider, error) {
	switch cfg.Provider {
	case "ollama":
		return &verdictProvider{
			name:           "ollama",
			completer:      ollama.NewClient(cfg.Ollama),
			timeoutErr:     ollama.ErrTimeout,
			unreachableErr: ollama.ErrUnreachable,
		}, nil
	case "openai":
		return &verdictProvider{
			name:           "openai",
			completer:      openai.NewClient(cfg.OpenAI),
			timeoutErr:     openai.ErrTimeout,
			unreachableErr: openai.ErrUnreachable,
		}, nil
	case "anthropic":
		return &verdictProvider{
			name:           "anthropic",
			completer:      anthropic.NewClient(cfg.Anthropic),
			timeoutErr:     anthropic.ErrTimeout,
			unreachableErr: anthropic.ErrUnreachable,
		}, nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, openai, anthropic", cfg.Provider)
	}
}
