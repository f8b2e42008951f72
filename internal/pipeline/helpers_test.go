package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"personabot/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type spyResponder struct {
	mu      sync.Mutex
	sent    []string
	errs    []error
	sendErr error
}

func (s *spyResponder) Send(ctx context.Context, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, content)
	return s.sendErr
}

func (s *spyResponder) Error(ctx context.Context, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
	return nil
}

func (s *spyResponder) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent), len(s.errs)
}

type stubAgent struct {
	id     string
	routes []Route
}

func (a *stubAgent) ID() string                  { return a.id }
func (a *stubAgent) Character() domain.Character { return domain.Character{Name: a.id, AgentID: a.id} }
func (a *stubAgent) Routes() []Route             { return a.routes }

func (a *stubAgent) Route(name string) (Route, bool) {
	for _, r := range a.routes {
		if r.Name == name {
			return r, true
		}
	}
	return Route{}, false
}

func (a *stubAgent) Select(ctx context.Context, c *Context) (string, error) {
	if len(a.routes) == 0 {
		return "", nil
	}
	return a.routes[0].Name, nil
}

func textInput(text string) domain.InputObject {
	return domain.InputObject{
		Source:  domain.SourceNetwork,
		UserID:  "u1",
		AgentID: "stern",
		RoomID:  "stern_u1",
		Type:    domain.TypeText,
		Text:    text,
	}
}
