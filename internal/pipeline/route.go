package pipeline

import (
	"context"

	"personabot/internal/domain"
)

// Handler produces a reply for an assembled context by calling res.Send.
type Handler func(ctx context.Context, c *Context, req *Request, res *Response) error

// Route is one named capability an agent can dispatch to.
type Route struct {
	Name        string
	Description string
	Handler     Handler
}

// Agent is what the pipeline needs from a persona: identity, routes and a selection policy.
type Agent interface {
	ID() string
	Character() domain.Character
	Route(name string) (Route, bool)
	Routes() []Route

	// Select names the route to dispatch to, or "" when none applies.
	Select(ctx context.Context, c *Context) (string, error)
}
