package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"personabot/internal/domain"
	"personabot/internal/metrics"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	anthropicSmallModel = "claude-3-5-haiku-latest"
	anthropicLargeModel = "claude-sonnet-4-5"
)

// Anthropic implements domain.LLM over the Claude Messages API.
type Anthropic struct {
	client anthropic.Client
	models Models
	logger *slog.Logger
}

type AnthropicConfig struct {
	APIKey     string
	APIBase    string
	Models     Models
	MaxRetries int
	Logger     *slog.Logger
}

func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	if cfg.Models.Small == "" {
		cfg.Models.Small = anthropicSmallModel
	}
	if cfg.Models.Large == "" {
		cfg.Models.Large = anthropicLargeModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	opts := []option.RequestOption{
		option.WithHTTPClient(sharedHTTPClient(defaultHTTPTimeout)),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.APIBase != "" {
		opts = append(opts, option.WithBaseURL(cfg.APIBase))
	}

	return &Anthropic{
		client: anthropic.NewClient(opts...),
		models: cfg.Models,
		logger: cfg.Logger,
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) GetText(ctx context.Context, prompt, model string) (string, error) {
	return a.complete(ctx, a.models.For(model), "", prompt)
}

// GetStructured asks for JSON in the system prompt; the Messages API has no
// response-format switch.
func (a *Anthropic) GetStructured(ctx context.Context, prompt string, schema domain.Schema, size domain.LLMSize, out any) error {
	schemaJSON, err := json.Marshal(schema.JSON)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	system := fmt.Sprintf("Respond with a single JSON object only, no prose. %s\nJSON schema (%s):\n%s",
		schema.Description, schema.Name, schemaJSON)

	text, err := a.complete(ctx, a.models.BySize(size), system, prompt)
	if err != nil {
		return err
	}
	if err := decodeJSONObject(text, out); err != nil {
		return generationError(a.Name(), err)
	}
	return nil
}

func (a *Anthropic) complete(ctx context.Context, model, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: defaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	start := time.Now()
	resp, err := a.client.Messages.New(ctx, params)
	metrics.LLMLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", generationError(a.Name(), err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	if sb.Len() == 0 {
		return "", generationError(a.Name(), errors.New("empty response"))
	}
	a.logger.Debug("llm completion",
		"provider", a.Name(),
		"model", model,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"duration", time.Since(start),
	)
	return sb.String(), nil
}
