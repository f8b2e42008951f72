package routes

import (
	"context"
	"fmt"
	"strings"

	"personabot/internal/domain"
	"personabot/internal/pipeline"
)

// Advice is the structured answer of the business_advice route.
type Advice struct {
	Problem        string   `json:"problem"`
	Recommendation string   `json:"recommendation"`
	ActionItems    []string `json:"actionItems"`
	Metrics        []string `json:"metrics"`
}

var adviceSchema = domain.Schema{
	Name:        "business_advice",
	Description: "A diagnosis of the business problem with a recommendation, concrete action items and the metrics to track.",
	JSON: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"problem":        map[string]any{"type": "string"},
			"recommendation": map[string]any{"type": "string"},
			"actionItems":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"metrics":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required":             []any{"problem", "recommendation", "actionItems", "metrics"},
		"additionalProperties": false,
	},
}

// BusinessAdvice produces structured advice with the large model and sends
// it formatted as a short plan.
func BusinessAdvice(llm domain.LLM, store domain.MemoryStore) pipeline.Route {
	return pipeline.Route{
		Name:        "business_advice",
		Description: "Structured business advice: problem, recommendation, action items and metrics",
		Handler: func(ctx context.Context, c *pipeline.Context, req *pipeline.Request, res *pipeline.Response) error {
			prompt := c.String() + "\n\nAs " + c.AgentName + ", analyse the business problem in the latest message and give advice."
			var adv Advice
			if err := llm.GetStructured(ctx, prompt, adviceSchema, domain.SizeLarge, &adv); err != nil {
				return fmt.Errorf("business_advice: %w", err)
			}
			if strings.TrimSpace(adv.Recommendation) == "" {
				return fmt.Errorf("business_advice: %w: empty recommendation", domain.ErrGenerationFailed)
			}
			if err := remember(ctx, store, req, domain.GeneratorLLM, adv.Recommendation); err != nil {
				return err
			}
			return res.Send(ctx, FormatAdvice(adv))
		},
	}
}

// FormatAdvice renders advice as plain text suitable for chat transports.
func FormatAdvice(a Advice) string {
	var sb strings.Builder
	if a.Problem != "" {
		sb.WriteString("Problem: ")
		sb.WriteString(a.Problem)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Recommendation: ")
	sb.WriteString(a.Recommendation)
	if len(a.ActionItems) > 0 {
		sb.WriteString("\n\nAction items:")
		for i, item := range a.ActionItems {
			fmt.Fprintf(&sb, "\n%d. %s", i+1, item)
		}
	}
	if len(a.Metrics) > 0 {
		sb.WriteString("\n\nTrack: ")
		sb.WriteString(strings.Join(a.Metrics, ", "))
	}
	return sb.String()
}
