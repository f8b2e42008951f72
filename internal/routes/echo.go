package routes

import (
	"context"

	"personabot/internal/domain"
	"personabot/internal/pipeline"
)

// Echo replies with "ECHO:" and the assembled context. Useful for smoke tests
// of a deployment without an LLM.
func Echo(store domain.MemoryStore) pipeline.Route {
	return pipeline.Route{
		Name:        "echo",
		Description: "Echo the assembled context back",
		Handler: func(ctx context.Context, c *pipeline.Context, req *pipeline.Request, res *pipeline.Response) error {
			reply := "ECHO:" + c.String()
			if err := remember(ctx, store, req, domain.GeneratorAgent, reply); err != nil {
				return err
			}
			return res.Send(ctx, reply)
		},
	}
}
