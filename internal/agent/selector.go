package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"personabot/internal/domain"
	"personabot/internal/pipeline"
)

// ConversationRoute is the name DefaultSelector falls back to.
const ConversationRoute = "conversation"

// DefaultSelector dispatches to the only route, or to "conversation" when present.
func DefaultSelector(ctx context.Context, c *pipeline.Context, routes []pipeline.Route) (string, error) {
	if len(routes) == 1 {
		return routes[0].Name, nil
	}
	for _, r := range routes {
		if r.Name == ConversationRoute {
			return r.Name, nil
		}
	}
	return "", nil
}

// KeywordSelector scores routes by how many of their keywords occur in the
// input text. Ties and misses defer to fallback.
func KeywordSelector(keywords map[string][]string, fallback Selector, logger *slog.Logger) Selector {
	if fallback == nil {
		fallback = DefaultSelector
	}
	if logger == nil {
		logger = slog.Default()
	}
	// Pre-compute lowercase keywords to avoid repeated ToLower on every message.
	lower := make(map[string][]string, len(keywords))
	for name, kws := range keywords {
		l := make([]string, len(kws))
		for i, kw := range kws {
			l[i] = strings.ToLower(kw)
		}
		lower[name] = l
	}

	return func(ctx context.Context, c *pipeline.Context, routes []pipeline.Route) (string, error) {
		text := strings.ToLower(c.Input.Text)

		var bestMatch string
		var bestScore int
		tie := false
		for _, r := range routes {
			score := 0
			for _, kw := range lower[r.Name] {
				if strings.Contains(text, kw) {
					score++
				}
			}
			switch {
			case score > bestScore:
				bestScore, bestMatch, tie = score, r.Name, false
			case score == bestScore && score > 0:
				tie = true
			}
		}

		if bestScore > 0 && !tie {
			logger.Debug("keyword selector matched route", "route", bestMatch, "score", bestScore)
			return bestMatch, nil
		}
		return fallback(ctx, c, routes)
	}
}

type routeChoice struct {
	Route string `json:"route"`
}

// LLMSelector asks the small model to choose among route descriptions.
// Generation failures or unknown answers defer to fallback.
func LLMSelector(llm domain.LLM, fallback Selector, logger *slog.Logger) Selector {
	if fallback == nil {
		fallback = DefaultSelector
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, c *pipeline.Context, routes []pipeline.Route) (string, error) {
		if len(routes) <= 1 {
			return fallback(ctx, c, routes)
		}

		names := make([]any, 0, len(routes))
		var sb strings.Builder
		sb.WriteString("Choose the route that best handles the latest message.\n\nRoutes:\n")
		for _, r := range routes {
			names = append(names, r.Name)
			fmt.Fprintf(&sb, "- %s: %s\n", r.Name, r.Description)
		}
		sb.WriteString("\nConversation:\n")
		sb.WriteString(c.Transcript())

		schema := domain.Schema{
			Name:        "route_choice",
			Description: "The selected route name",
			JSON: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"route": map[string]any{"type": "string", "enum": names},
				},
				"required":             []any{"route"},
				"additionalProperties": false,
			},
		}

		var choice routeChoice
		if err := llm.GetStructured(ctx, sb.String(), schema, domain.SizeSmall, &choice); err != nil {
			logger.Warn("llm route selection failed, using fallback", "err", err)
			return fallback(ctx, c, routes)
		}
		for _, r := range routes {
			if r.Name == choice.Route {
				return r.Name, nil
			}
		}
		logger.Warn("llm chose unknown route, using fallback", "route", choice.Route)
		return fallback(ctx, c, routes)
	}
}

// SelectorFor builds the selector named by strategy ("default", "keyword", "llm").
func SelectorFor(strategy string, character domain.Character, llm domain.LLM, logger *slog.Logger) (Selector, error) {
	switch strategy {
	case "", "default":
		return DefaultSelector, nil
	case "keyword":
		return KeywordSelector(character.Routes, DefaultSelector, logger), nil
	case "llm":
		if llm == nil {
			return nil, fmt.Errorf("llm routing requires an llm provider")
		}
		return LLMSelector(llm, KeywordSelector(character.Routes, DefaultSelector, logger), logger), nil
	default:
		return nil, fmt.Errorf("unknown routing strategy %q", strategy)
	}
}
