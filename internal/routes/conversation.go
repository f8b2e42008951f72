package routes

import (
	"context"
	"fmt"
	"strings"

	"personabot/internal/domain"
	"personabot/internal/pipeline"
)

// Conversation answers in character with free text from the large model.
func Conversation(llm domain.LLM, store domain.MemoryStore) pipeline.Route {
	return pipeline.Route{
		Name:        "conversation",
		Description: "General conversation in the agent's voice",
		Handler: func(ctx context.Context, c *pipeline.Context, req *pipeline.Request, res *pipeline.Response) error {
			prompt := c.String() + "\n\nRespond as " + c.AgentName + " to the latest message."
			reply, err := llm.GetText(ctx, prompt, string(domain.SizeLarge))
			if err != nil {
				return fmt.Errorf("conversation: %w", err)
			}
			reply = strings.TrimSpace(reply)
			if reply == "" {
				return fmt.Errorf("conversation: %w: empty reply", domain.ErrGenerationFailed)
			}
			if err := remember(ctx, store, req, domain.GeneratorLLM, reply); err != nil {
				return err
			}
			return res.Send(ctx, reply)
		},
	}
}
