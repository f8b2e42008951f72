package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"personabot/internal/agent"
	"personabot/internal/domain"
	"personabot/internal/memory"
	"personabot/internal/pipeline"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type spyResponder struct {
	mu   sync.Mutex
	sent []string
	errs []error
}

func (s *spyResponder) Send(ctx context.Context, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, content)
	return nil
}

func (s *spyResponder) Error(ctx context.Context, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
	return nil
}

// failingStore fails the selected operations.
type failingStore struct {
	*memory.InMemoryStore
	failInsert bool
	failQuery  bool
}

func (f *failingStore) Insert(ctx context.Context, m domain.Memory) (domain.Memory, error) {
	if f.failInsert {
		return domain.Memory{}, errors.New("disk full")
	}
	return f.InMemoryStore.Insert(ctx, m)
}

func (f *failingStore) QueryRecent(ctx context.Context, roomID string, limit int) ([]domain.Memory, error) {
	if f.failQuery {
		return nil, errors.New("db locked")
	}
	return f.InMemoryStore.QueryRecent(ctx, roomID, limit)
}

// echoRoute replies with "ECHO:" plus the rendered context and records the
// reply as an agent memory.
func echoRoute(store domain.MemoryStore) pipeline.Route {
	return pipeline.Route{
		Name: "conversation",
		Handler: func(ctx context.Context, c *pipeline.Context, req *pipeline.Request, res *pipeline.Response) error {
			reply := "ECHO:" + c.String()
			if _, err := store.Insert(ctx, domain.Memory{
				UserID:    req.Input.UserID,
				AgentID:   req.Agent.ID(),
				RoomID:    req.Input.RoomID,
				Type:      string(domain.TypeText),
				Generator: domain.GeneratorAgent,
				Content:   domain.TextContent(reply),
			}); err != nil {
				return err
			}
			return res.Send(ctx, reply)
		},
	}
}

type harness struct {
	engine *pipeline.Engine
	store  domain.MemoryStore
	agent  *agent.Agent
}

func newHarness(store domain.MemoryStore, routes ...pipeline.Route) *harness {
	e := pipeline.NewEngine(pipeline.EngineConfig{Logger: quietLogger()})
	e.Use(Standard(Deps{Store: store, RecentLimit: 10, Logger: quietLogger()})...)
	return &harness{
		engine: e,
		store:  store,
		agent:  agent.New(agent.Stern, agent.WithRoutes(routes...)),
	}
}

func (h *harness) process(in domain.InputObject) *spyResponder {
	spy := &spyResponder{}
	h.engine.Process(context.Background(), in, h.agent, spy)
	return spy
}

func sternInput(text string) domain.InputObject {
	return domain.InputObject{
		Source:  domain.SourceNetwork,
		UserID:  "u1",
		AgentID: "stern",
		RoomID:  "stern_u1",
		Type:    domain.TypeText,
		Text:    text,
	}
}
