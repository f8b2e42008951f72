// Package agent holds personas, their route tables and the loop that feeds
// bus traffic into the pipeline.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"personabot/internal/domain"
	"personabot/internal/pipeline"
)

// Selector picks a route name for an assembled context. "" means no route applies.
type Selector func(ctx context.Context, c *pipeline.Context, routes []pipeline.Route) (string, error)

// Agent is one persona with its route table. Routes are published
// copy-on-write, so registration never disturbs a dispatch in flight.
type Agent struct {
	character domain.Character
	selector  Selector
	err       error // construction failures from WithRoutes

	writeMu sync.Mutex
	routes  atomic.Pointer[[]pipeline.Route]
}

// Option customises a new Agent.
type Option func(*Agent)

// WithSelector sets the route selection policy (default: DefaultSelector).
func WithSelector(s Selector) Option {
	return func(a *Agent) { a.selector = s }
}

// WithRoutes registers routes at construction time. Invalid routes are
// reported by Err and make Registry.Register fail.
func WithRoutes(routes ...pipeline.Route) Option {
	return func(a *Agent) {
		for _, r := range routes {
			if err := a.AddRoute(r); err != nil {
				a.err = errors.Join(a.err, err)
			}
		}
	}
}

// New creates an agent for character.
func New(character domain.Character, opts ...Option) *Agent {
	a := &Agent{character: character, selector: DefaultSelector}
	empty := []pipeline.Route{}
	a.routes.Store(&empty)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) ID() string                  { return a.character.AgentID }
func (a *Agent) Name() string                { return a.character.Name }
func (a *Agent) Character() domain.Character { return a.character }

// Err reports routes rejected while the agent was constructed.
func (a *Agent) Err() error { return a.err }

// AddRoute registers r, replacing any route with the same name.
func (a *Agent) AddRoute(r pipeline.Route) error {
	if r.Name == "" {
		return errors.New("route name is required")
	}
	if r.Handler == nil {
		return fmt.Errorf("route %q has no handler", r.Name)
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	cur := *a.routes.Load()
	next := make([]pipeline.Route, 0, len(cur)+1)
	replaced := false
	for _, existing := range cur {
		if existing.Name == r.Name {
			next = append(next, r)
			replaced = true
			continue
		}
		next = append(next, existing)
	}
	if !replaced {
		next = append(next, r)
	}
	a.routes.Store(&next)
	return nil
}

// Route looks up a route by name.
func (a *Agent) Route(name string) (pipeline.Route, bool) {
	for _, r := range *a.routes.Load() {
		if r.Name == name {
			return r, true
		}
	}
	return pipeline.Route{}, false
}

// Routes returns the registered routes in registration order.
func (a *Agent) Routes() []pipeline.Route {
	cur := *a.routes.Load()
	out := make([]pipeline.Route, len(cur))
	copy(out, cur)
	return out
}

// Select applies the agent's selection policy.
func (a *Agent) Select(ctx context.Context, c *pipeline.Context) (string, error) {
	return a.selector(ctx, c, a.Routes())
}
