package channel

import (
	"io"
	"log/slog"
	"sync"

	"personabot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// funcBus runs handle for every published envelope on its own goroutine and
// then finishes the envelope, the way the agent loop does.
type funcBus struct {
	handle func(env domain.Envelope)

	mu        sync.Mutex
	published []domain.Envelope
}

func newFuncBus(handle func(env domain.Envelope)) *funcBus {
	return &funcBus{handle: handle}
}

func (b *funcBus) Publish(env domain.Envelope) {
	b.mu.Lock()
	b.published = append(b.published, env)
	b.mu.Unlock()
	go func() {
		defer env.Finish()
		if b.handle != nil {
			b.handle(env)
		}
	}()
}

func (b *funcBus) Subscribe() <-chan domain.Envelope { return nil }
func (b *funcBus) Close()                            {}

func (b *funcBus) inputs() []domain.InputObject {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.InputObject, len(b.published))
	for i, env := range b.published {
		out[i] = env.Input
	}
	return out
}

type agentSet map[string]bool

func (s agentSet) Has(id string) bool { return s[id] }
