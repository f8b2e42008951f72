package middleware

import (
	"context"
	"fmt"
	"log/slog"

	"personabot/internal/metrics"
	"personabot/internal/pipeline"
)

// Router selects one of the agent's routes and runs its handler against the
// assembled context. It is the terminal stage and never calls next.
func Router(logger *slog.Logger) pipeline.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req *pipeline.Request, res *pipeline.Response, next pipeline.Next) error {
		c := req.Context
		if c == nil {
			c = BuildContext(req.Agent.Character(), req.Memories, req.Input)
			req.Context = c
		}

		name, err := req.Agent.Select(ctx, c)
		if err != nil {
			return &pipeline.StageError{Stage: "router", Err: fmt.Errorf("select route: %w", err)}
		}
		if name == "" {
			return pipeline.ErrNoRoute
		}
		route, ok := req.Agent.Route(name)
		if !ok {
			return fmt.Errorf("%w: %s", pipeline.ErrNoRoute, name)
		}

		logger.Debug("dispatching route", "request_id", req.ID, "agent", req.Agent.ID(), "route", name)
		metrics.RouteDispatches(name).Inc()
		return route.Handler(ctx, c, req, res)
	}
}
