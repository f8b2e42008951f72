package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Generator records who produced a memory.
type Generator string

const (
	GeneratorExternal Generator = "external"
	GeneratorAgent    Generator = "agent"
	GeneratorLLM      Generator = "llm"
)

// Memory is one persisted conversational turn. Records are append-only.
type Memory struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	AgentID   string    `json:"agentId"`
	RoomID    string    `json:"roomId"`
	Type      string    `json:"type"`
	Generator Generator `json:"generator"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// MemoryStore is an append-only record of conversation turns keyed by room.
type MemoryStore interface {
	// Insert appends a record and returns it with ID and CreatedAt filled in.
	Insert(ctx context.Context, m Memory) (Memory, error)

	// QueryRecent returns at most limit records for roomID, oldest first.
	QueryRecent(ctx context.Context, roomID string, limit int) ([]Memory, error)

	Close() error
}

type turnContent struct {
	Text string `json:"text"`
}

// TextContent serializes a reply turn the way input turns are stored, so both
// kinds expose their text under the same key.
func TextContent(text string) string {
	b, _ := json.Marshal(turnContent{Text: text})
	return string(b)
}

// Text extracts the spoken text of a memory. Content that is not a JSON
// object with a "text" field is returned as-is.
func (m Memory) Text() string {
	var tc turnContent
	if err := json.Unmarshal([]byte(m.Content), &tc); err != nil || tc.Text == "" {
		return m.Content
	}
	return tc.Text
}
