package pipeline

import (
	"time"

	"personabot/internal/domain"
)

// Request is the per-run state shared by middleware stages.
type Request struct {
	ID        string
	Input     domain.InputObject
	Agent     Agent
	StartedAt time.Time

	// InputMemoryID is the record persisted for Input, if any.
	InputMemoryID string

	// Memories are prior turns for the room, oldest first.
	Memories []domain.Memory

	// Context is set by the context-building stage.
	Context *Context
}
