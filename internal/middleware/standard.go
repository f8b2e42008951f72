package middleware

import (
	"log/slog"

	"personabot/internal/domain"
	"personabot/internal/pipeline"
)

// Deps are the collaborators of the standard stack.
type Deps struct {
	Store       domain.MemoryStore
	RecentLimit int
	Logger      *slog.Logger
}

// Standard returns the default stage order.
func Standard(d Deps) []pipeline.Middleware {
	return []pipeline.Middleware{
		ValidateInput(),
		CreateMemory(d.Store),
		LoadMemories(d.Store, d.RecentLimit),
		WrapContext(),
		Router(d.Logger),
	}
}
