package middleware

import (
	"context"
	"encoding/json"
	"fmt"

	"personabot/internal/domain"
	"personabot/internal/pipeline"
)

// CreateMemory persists the raw input as an external memory before any
// context is built.
func CreateMemory(store domain.MemoryStore) pipeline.Middleware {
	return func(ctx context.Context, req *pipeline.Request, res *pipeline.Response, next pipeline.Next) error {
		content, err := json.Marshal(req.Input)
		if err != nil {
			return &pipeline.StageError{Stage: "createMemory", Err: fmt.Errorf("failed to create memory: %w", err)}
		}

		m, err := store.Insert(ctx, domain.Memory{
			UserID:    req.Input.UserID,
			AgentID:   req.Input.AgentID,
			RoomID:    req.Input.RoomID,
			Type:      string(req.Input.Type),
			Generator: domain.GeneratorExternal,
			Content:   string(content),
		})
		if err != nil {
			return &pipeline.StageError{Stage: "createMemory", Err: fmt.Errorf("failed to create memory: %w", err)}
		}
		req.InputMemoryID = m.ID

		next(ctx)
		return nil
	}
}
