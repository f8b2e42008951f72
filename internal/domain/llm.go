package domain

import (
	"context"
	"errors"
)

// ErrGenerationFailed is wrapped by every LLM failure.
var ErrGenerationFailed = errors.New("generation failed")

// LLMSize picks between the configured small and large models.
type LLMSize string

const (
	SizeSmall LLMSize = "small"
	SizeLarge LLMSize = "large"
)

// Schema describes the JSON object a structured generation must return.
type Schema struct {
	Name        string
	Description string
	JSON        map[string]any
}

// LLM is the text/structured generation boundary used by route handlers.
type LLM interface {
	// GetText returns free text for prompt. An empty model selects the large model.
	GetText(ctx context.Context, prompt, model string) (string, error)

	// GetStructured decodes a JSON object matching schema into out.
	GetStructured(ctx context.Context, prompt string, schema Schema, size LLMSize, out any) error

	Name() string
}
