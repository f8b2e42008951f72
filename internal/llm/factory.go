package llm

import (
	"fmt"
	"log/slog"

	"personabot/internal/config"
	"personabot/internal/domain"
)

const ollamaAPIBase = "http://localhost:11434/v1"

// New builds the LLM described by cfg: the primary provider, any failover
// chain members behind it, and the rate limit around the whole chain.
func New(cfg config.LLMConfig, logger *slog.Logger) (domain.LLM, error) {
	if logger == nil {
		logger = slog.Default()
	}
	primary, err := build(cfg.Provider, config.LLMProviderConfig{
		Kind:       cfg.Provider,
		APIKey:     cfg.APIKey,
		APIBase:    cfg.APIBase,
		SmallModel: cfg.SmallModel,
		LargeModel: cfg.LargeModel,
	}, logger)
	if err != nil {
		return nil, err
	}

	var out domain.LLM = primary
	if len(cfg.FailoverChain) > 0 {
		chain := []domain.LLM{primary}
		for _, name := range cfg.FailoverChain {
			pc, ok := cfg.Providers[name]
			if !ok {
				return nil, fmt.Errorf("failover chain references unknown provider %q", name)
			}
			l, err := build(name, pc, logger)
			if err != nil {
				return nil, err
			}
			chain = append(chain, l)
		}
		out = NewFailover(chain, logger)
	}
	return NewRateLimited(out, cfg.RateLimitPerMinute), nil
}

func build(name string, pc config.LLMProviderConfig, logger *slog.Logger) (domain.LLM, error) {
	models := Models{Small: pc.SmallModel, Large: pc.LargeModel}
	switch pc.Kind {
	case "openai":
		return NewOpenAI(OpenAIConfig{Name: name, APIKey: pc.APIKey, APIBase: pc.APIBase, Models: models, MaxRetries: 2, Logger: logger}), nil
	case "ollama":
		base := pc.APIBase
		if base == "" {
			base = ollamaAPIBase
		}
		if models.Small == "" {
			models.Small = "llama3.1:8b"
		}
		if models.Large == "" {
			models.Large = models.Small
		}
		return NewOpenAI(OpenAIConfig{Name: name, APIKey: "ollama", APIBase: base, Models: models, MaxRetries: 2, Logger: logger}), nil
	case "anthropic":
		return NewAnthropic(AnthropicConfig{APIKey: pc.APIKey, APIBase: pc.APIBase, Models: models, MaxRetries: 2, Logger: logger}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", pc.Kind)
	}
}
