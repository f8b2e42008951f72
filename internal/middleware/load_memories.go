package middleware

import (
	"context"
	"fmt"

	"personabot/internal/domain"
	"personabot/internal/pipeline"
)

// DefaultRecentLimit bounds how many prior turns are loaded per run.
const DefaultRecentLimit = 20

// LoadMemories loads the most recent turns for the input's room, oldest first.
// The record written for the current input is left out; the context stage
// appends the input itself. Concurrent writers to the same room may or may
// not be visible, depending on commit order.
func LoadMemories(store domain.MemoryStore, limit int) pipeline.Middleware {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return func(ctx context.Context, req *pipeline.Request, res *pipeline.Response, next pipeline.Next) error {
		fetch := limit
		if req.InputMemoryID != "" {
			fetch++
		}
		recent, err := store.QueryRecent(ctx, req.Input.RoomID, fetch)
		if err != nil {
			return &pipeline.StageError{Stage: "loadMemories", Err: fmt.Errorf("failed to load memories: %w", err)}
		}

		memories := make([]domain.Memory, 0, len(recent))
		for _, m := range recent {
			if m.ID == req.InputMemoryID {
				continue
			}
			memories = append(memories, m)
		}
		if len(memories) > limit {
			memories = memories[len(memories)-limit:]
		}
		req.Memories = memories

		next(ctx)
		return nil
	}
}
