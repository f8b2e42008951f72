// Package routes provides the stock route handlers agents register:
// conversation, business_advice and echo.
package routes

import (
	"context"
	"fmt"

	"personabot/internal/domain"
	"personabot/internal/pipeline"
)

// remember persists a reply turn for the input's room.
func remember(ctx context.Context, store domain.MemoryStore, req *pipeline.Request, gen domain.Generator, text string) error {
	_, err := store.Insert(ctx, domain.Memory{
		UserID:    req.Input.UserID,
		AgentID:   req.Agent.ID(),
		RoomID:    req.Input.RoomID,
		Type:      string(domain.TypeText),
		Generator: gen,
		Content:   domain.TextContent(text),
	})
	if err != nil {
		return fmt.Errorf("persist reply: %w", err)
	}
	return nil
}

// Stock returns every stock route for an agent backed by llm and store.
func Stock(llm domain.LLM, store domain.MemoryStore) []pipeline.Route {
	return []pipeline.Route{
		Conversation(llm, store),
		BusinessAdvice(llm, store),
	}
}
