package memory

import (
	"context"
	"sync"
	"time"

	"personabot/internal/domain"
	"personabot/internal/metrics"

	"github.com/google/uuid"
)

// InMemoryStore is a process-local MemoryStore for tests and ephemeral runs.
// Records are kept per room in insertion order.
type InMemoryStore struct {
	mu    sync.RWMutex
	rooms map[string][]domain.Memory
	now   func() time.Time
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		rooms: make(map[string][]domain.Memory),
		now:   time.Now,
	}
}

func (s *InMemoryStore) Insert(ctx context.Context, m domain.Memory) (domain.Memory, error) {
	if err := ctx.Err(); err != nil {
		return domain.Memory{}, err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	room := s.rooms[m.RoomID]
	// Keep the slice ordered by CreatedAt; equal timestamps stay in insertion order.
	i := len(room)
	for i > 0 && room[i-1].CreatedAt.After(m.CreatedAt) {
		i--
	}
	room = append(room, domain.Memory{})
	copy(room[i+1:], room[i:])
	room[i] = m
	s.rooms[m.RoomID] = room
	metrics.MemoriesWritten.Inc()
	return m, nil
}

func (s *InMemoryStore) QueryRecent(ctx context.Context, roomID string, limit int) ([]domain.Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	room := s.rooms[roomID]
	start := 0
	if len(room) > limit {
		start = len(room) - limit
	}
	out := make([]domain.Memory, len(room)-start)
	copy(out, room[start:])
	return out, nil
}

// All returns a copy of every record in a room, oldest first.
func (s *InMemoryStore) All(roomID string) []domain.Memory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Memory, len(s.rooms[roomID]))
	copy(out, s.rooms[roomID])
	return out
}

func (s *InMemoryStore) Close() error { return nil }
