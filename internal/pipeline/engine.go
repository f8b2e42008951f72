package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"personabot/internal/domain"
	"personabot/internal/metrics"

	"github.com/google/uuid"
)

// Next continues the chain with the following stage. Errors raised further
// down the chain are handled there and never surface through Next.
type Next func(ctx context.Context)

// Middleware is one pipeline stage.
type Middleware func(ctx context.Context, req *Request, res *Response, next Next) error

// Engine executes registered middleware over each processed input.
type Engine struct {
	mu            sync.RWMutex
	middleware    []Middleware
	errorHandlers []ErrorHandler
	logger        *slog.Logger
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	Logger *slog.Logger
}

// NewEngine creates an engine with no stages.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{logger: cfg.Logger}
}

// Use appends stages to the chain.
func (e *Engine) Use(mw ...Middleware) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := make([]Middleware, 0, len(e.middleware)+len(mw))
	next = append(next, e.middleware...)
	e.middleware = append(next, mw...)
	return e
}

// OnError registers error handlers, run in registration order.
func (e *Engine) OnError(h ...ErrorHandler) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := make([]ErrorHandler, 0, len(e.errorHandlers)+len(h))
	next = append(next, e.errorHandlers...)
	e.errorHandlers = append(next, h...)
	return e
}

// Process runs the chain for one input. A nil responder logs the outcome.
// Process returns once every stage that was reached has returned.
func (e *Engine) Process(ctx context.Context, input domain.InputObject, agent Agent, responder domain.Responder) {
	e.mu.RLock()
	chain := e.middleware
	handlers := e.errorHandlers
	e.mu.RUnlock()

	if responder == nil {
		responder = NewLogResponder(e.logger)
	}

	req := &Request{
		ID:        uuid.NewString(),
		Input:     input,
		Agent:     agent,
		StartedAt: time.Now(),
	}
	res := newResponse(req, responder, handlers, e.logger)

	metrics.RunsTotal.Inc()
	metrics.ActiveRuns.Inc()
	defer func() {
		metrics.ActiveRuns.Dec()
		metrics.RunLatency.Observe(time.Since(req.StartedAt).Seconds())
	}()

	e.logger.Debug("pipeline run started",
		"request_id", req.ID,
		"source", input.Source,
		"agent", input.AgentID,
		"room", input.RoomID,
	)

	e.run(ctx, chain, 0, req, res)

	if !res.Responded() {
		e.logger.Debug("pipeline run ended without a response", "request_id", req.ID)
	}
}

func (e *Engine) run(ctx context.Context, chain []Middleware, i int, req *Request, res *Response) {
	if i >= len(chain) {
		return
	}
	if err := ctx.Err(); err != nil {
		res.Error(ctx, fmt.Errorf("pipeline cancelled: %w", err))
		return
	}
	next := func(ctx context.Context) {
		e.run(ctx, chain, i+1, req, res)
	}
	if err := invoke(ctx, chain[i], req, res, next); err != nil {
		res.Error(ctx, err)
	}
}

func invoke(ctx context.Context, mw Middleware, req *Request, res *Response, next Next) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("middleware panic: %v", p)
		}
	}()
	return mw(ctx, req, res, next)
}
