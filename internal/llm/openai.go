package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"personabot/internal/domain"
	"personabot/internal/metrics"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI implements domain.LLM for OpenAI-compatible chat completion APIs
// (OpenAI itself, Ollama's /v1 endpoint, and similar gateways).
type OpenAI struct {
	name   string
	client openai.Client
	models Models
	logger *slog.Logger
}

type OpenAIConfig struct {
	Name       string // reported by Name(); defaults to "openai"
	APIKey     string
	APIBase    string
	Models     Models
	MaxRetries int
	Logger     *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.Models.Small == "" {
		cfg.Models.Small = openai.ChatModelGPT4oMini
	}
	if cfg.Models.Large == "" {
		cfg.Models.Large = openai.ChatModelGPT4o
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

	return &OpenAI{
		name:   cfg.Name,
		client: openai.NewClient(opts...),
		models: cfg.Models,
		logger: cfg.Logger,
	}
}

func (o *OpenAI) Name() string { return o.name }

func (o *OpenAI) GetText(ctx context.Context, prompt, model string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:               o.models.For(model),
		Messages:            []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		MaxCompletionTokens: openai.Int(defaultMaxTokens),
	}
	return o.complete(ctx, params)
}

func (o *OpenAI) GetStructured(ctx context.Context, prompt string, schema domain.Schema, size domain.LLMSize, out any) error {
	params := openai.ChatCompletionNewParams{
		Model:    o.models.BySize(size),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        schema.Name,
					Description: openai.String(schema.Description),
					Schema:      schema.JSON,
					Strict:      openai.Bool(true),
				},
			},
		},
	}
	text, err := o.complete(ctx, params)
	if err != nil {
		return err
	}
	if err := decodeJSONObject(text, out); err != nil {
		return generationError(o.name, err)
	}
	return nil
}

func (o *OpenAI) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, params)
	metrics.LLMLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", generationError(o.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", generationError(o.name, errors.New("no choices returned"))
	}
	o.logger.Debug("llm completion",
		"provider", o.name,
		"model", params.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"duration", time.Since(start),
	)
	return resp.Choices[0].Message.Content, nil
}
