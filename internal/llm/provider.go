package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/stellarlinkco/chatscribe/internal/config"
)

// providerClient issues single non-streaming completions through an agentsdk-go
// model provider. Stop sequences are not exposed by those providers, so
// GenerationOptions.Terminators is ignored here.
type providerClient struct {
	backend  string
	provider model.Provider
	system   string
}

// NewProviderClient wraps an agentsdk-go provider.
func NewProviderClient(backend string, provider model.Provider, system string) Client {
	return &providerClient{backend: backend, provider: provider, system: system}
}

func (c *providerClient) Generate(ctx context.Context, prompt string, opts GenerationOptions) (string, error) {
	ctx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	mdl, err := c.provider.Model(ctx)
	if err != nil {
		return "", generationError(c.backend, "resolve model: %w", err)
	}

	temperature := opts.Temperature
	resp, err := mdl.Complete(ctx, model.Request{
		Messages: []model.Message{{
			Role:    "user",
			Content: prompt,
		}},
		System:      c.system,
		MaxTokens:   opts.MaxOutputTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return "", generationError(c.backend, "complete: %w", err)
	}
	if resp == nil {
		return "", generationError(c.backend, "nil response")
	}
	content := strings.TrimSpace(resp.Message.Content)
	if content == "" {
		return "", generationError(c.backend, "empty content in response")
	}
	return content, nil
}

// New builds the completion client selected by cfg.Provider.Type. It is meant to be
// called once per process and shared.
func New(cfg *config.Config) (Client, error) {
	modelName := strings.TrimSpace(cfg.Summary.Model)
	system := cfg.Summary.SystemMessage

	switch strings.ToLower(strings.TrimSpace(cfg.Provider.Type)) {
	case "", config.ProviderOllama:
		return NewOllama(OllamaConfig{
			BaseURL:       cfg.Provider.BaseURL,
			Model:         modelName,
			SystemMessage: system,
		})
	case config.ProviderOpenAI:
		if cfg.Provider.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewProviderClient(config.ProviderOpenAI, &model.OpenAIProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: modelName,
			MaxTokens: cfg.Summary.MaxOutputTokens,
			CacheTTL:  time.Hour,
		}, system), nil
	case config.ProviderAnthropic:
		if cfg.Provider.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		return NewProviderClient(config.ProviderAnthropic, &model.AnthropicProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: modelName,
			MaxTokens: cfg.Summary.MaxOutputTokens,
			CacheTTL:  time.Hour,
		}, system), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Provider.Type)
	}
}

// OptionsFromConfig maps the summary section onto GenerationOptions, falling back to
// the package defaults for unset values.
func OptionsFromConfig(cfg config.SummaryConfig) GenerationOptions {
	opts := DefaultOptions()
	if cfg.Temperature != nil {
		opts.Temperature = *cfg.Temperature
	}
	if cfg.MaxOutputTokens > 0 {
		opts.MaxOutputTokens = cfg.MaxOutputTokens
	}
	if len(cfg.Terminators) > 0 {
		opts.Terminators = append([]string(nil), cfg.Terminators...)
	}
	if cfg.Seed != nil {
		seed := *cfg.Seed
		opts.Seed = &seed
	}
	if cfg.TimeoutSec > 0 {
		opts.Timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}
	return opts
}
