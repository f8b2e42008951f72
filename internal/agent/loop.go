package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"personabot/internal/domain"
	"personabot/internal/metrics"
	"personabot/internal/pipeline"
)

const defaultConcurrency = 3

// Loop drains the message bus into the pipeline engine.
type Loop struct {
	bus          domain.MessageBus
	engine       *pipeline.Engine
	registry     *Registry
	defaultAgent string
	logger       *slog.Logger
	concurrency  int

	wg sync.WaitGroup
}

// LoopConfig holds the loop's dependencies.
type LoopConfig struct {
	Bus          domain.MessageBus
	Engine       *pipeline.Engine
	Registry     *Registry
	DefaultAgent string // used when an input carries no agentId
	Logger       *slog.Logger
	Concurrency  int // max parallel pipeline runs (default 3)
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		bus:          cfg.Bus,
		engine:       cfg.Engine,
		registry:     cfg.Registry,
		defaultAgent: cfg.DefaultAgent,
		logger:       cfg.Logger,
		concurrency:  cfg.Concurrency,
	}
}

// Run consumes envelopes until ctx ends or the bus closes, then waits for
// in-flight runs to return.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("agent loop started", "concurrency", l.concurrency)
	defer l.wg.Wait()

	sem := make(chan struct{}, l.concurrency)
	inbound := l.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("agent loop stopping")
			return
		case env, ok := <-inbound:
			if !ok {
				l.logger.Info("bus closed, agent loop stopping")
				return
			}
			l.wg.Add(1)
			go func(env domain.Envelope) {
				defer l.wg.Done()
				defer env.Finish()
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					l.reject(ctx, env, ctx.Err())
					return
				}
				defer func() { <-sem }()
				l.Dispatch(ctx, env.Input, env.Responder)
			}(env)
		}
	}
}

// Dispatch runs one input through the pipeline synchronously.
func (l *Loop) Dispatch(ctx context.Context, input domain.InputObject, responder domain.Responder) {
	if input.AgentID == "" {
		input.AgentID = l.defaultAgent
	}
	metrics.ChannelInputs(string(input.Source)).Inc()

	a, err := l.registry.Get(input.AgentID)
	if err != nil {
		l.reject(ctx, domain.Envelope{Input: input, Responder: responder}, err)
		return
	}
	l.engine.Process(ctx, input, a, responder)
}

func (l *Loop) reject(ctx context.Context, env domain.Envelope, err error) {
	level := slog.LevelWarn
	if errors.Is(err, context.Canceled) {
		level = slog.LevelDebug
	}
	l.logger.Log(ctx, level, "input dropped",
		"source", env.Input.Source,
		"agent", env.Input.AgentID,
		"room", env.Input.RoomID,
		"err", err,
	)
	if env.Responder == nil {
		return
	}
	if rerr := env.Responder.Error(ctx, err); rerr != nil {
		l.logger.Error("cannot deliver error notice", "err", rerr)
	}
}
