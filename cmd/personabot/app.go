package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"personabot/internal/agent"
	"personabot/internal/bus"
	"personabot/internal/channel"
	"personabot/internal/config"
	"personabot/internal/domain"
	"personabot/internal/llm"
	"personabot/internal/memory"
	"personabot/internal/middleware"
	"personabot/internal/pipeline"
	"personabot/internal/routes"
)

const shutdownTimeout = 10 * time.Second

// app owns every long-lived component of a running personabot.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    domain.MemoryStore
	llm      domain.LLM
	registry *agent.Registry
	engine   *pipeline.Engine
	bus      *bus.InMemoryBus
	loop     *agent.Loop
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	if cfg.Memory.Driver != "memory" {
		if err := os.MkdirAll(filepath.Dir(cfg.Memory.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("memory dir: %w", err)
		}
	}
	store, err := memory.Open(cfg.Memory.Driver, cfg.Memory.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}

	model, err := llm.New(cfg.LLM, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("llm: %w", err)
	}

	registry, err := buildRegistry(cfg, model, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	engine := newEngine(store, cfg.Memory.RecentLimit, logger)

	messageBus := bus.New(100, logger)
	loop := agent.NewLoop(agent.LoopConfig{
		Bus:          messageBus,
		Engine:       engine,
		Registry:     registry,
		DefaultAgent: cfg.General.DefaultAgent,
		Logger:       logger,
		Concurrency:  cfg.General.MaxConcurrentMessages,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		llm:      model,
		registry: registry,
		engine:   engine,
		bus:      messageBus,
		loop:     loop,
	}, nil
}

// newEngine builds the standard pipeline with an error handler that logs
// every failure with its run coordinates.
func newEngine(store domain.MemoryStore, recentLimit int, logger *slog.Logger) *pipeline.Engine {
	engine := pipeline.NewEngine(pipeline.EngineConfig{Logger: logger})
	engine.Use(middleware.Standard(middleware.Deps{
		Store:       store,
		RecentLimit: recentLimit,
		Logger:      logger,
	})...)
	engine.OnError(func(ctx context.Context, err error, req *pipeline.Request, res *pipeline.Response) error {
		logger.Error("pipeline error",
			"agent", req.Input.AgentID,
			"room", req.Input.RoomID,
			"source", req.Input.Source,
			"request_id", req.ID,
			"err", err,
		)
		return nil
	})
	return engine
}

// buildRegistry registers the built-in character plus every character file
// in the characters dir. Files override the built-in on a shared agentId.
func buildRegistry(cfg *config.Config, model domain.LLM, store domain.MemoryStore, logger *slog.Logger) (*agent.Registry, error) {
	byID := map[string]domain.Character{agent.Stern.AgentID: agent.Stern}
	order := []string{agent.Stern.AgentID}

	loaded, err := agent.LoadCharacters(cfg.General.CharactersDir, logger)
	if err != nil {
		return nil, fmt.Errorf("load characters: %w", err)
	}
	for _, c := range loaded {
		if _, ok := byID[c.AgentID]; !ok {
			order = append(order, c.AgentID)
		}
		byID[c.AgentID] = c
	}

	registry := agent.NewRegistry()
	for _, id := range order {
		character := byID[id]
		selector, err := agent.SelectorFor(cfg.Routing.Strategy, character, model, logger)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", id, err)
		}
		routeSet := append(routes.Stock(model, store), routes.Echo(store))
		a := agent.New(character, agent.WithSelector(selector), agent.WithRoutes(routeSet...))
		if err := registry.Register(a); err != nil {
			return nil, err
		}
		logger.Debug("agent registered", "agent", id, "routes", len(routeSet))
	}
	return registry, nil
}

// channels constructs every enabled channel.
func (a *app) channels() []domain.Channel {
	cc := a.cfg.Channels
	defaultAgent := a.cfg.General.DefaultAgent
	var out []domain.Channel

	if cc.Network.Enabled {
		metricsPath := ""
		if a.cfg.Metrics.Enabled {
			metricsPath = a.cfg.Metrics.Endpoint
		}
		out = append(out, channel.NewNetwork(channel.NetworkConfig{
			Host:        cc.Network.Host,
			Port:        cc.Network.Port,
			Agents:      a.registry,
			WebSocket:   cc.Network.WebSocket,
			MetricsPath: metricsPath,
			Logger:      a.logger,
		}))
	}
	if cc.Discord.Enabled {
		out = append(out, channel.NewDiscord(channel.DiscordConfig{
			Token:   cc.Discord.Token,
			AgentID: defaultAgent,
			DryRun:  cc.Discord.DryRun,
			Logger:  a.logger,
		}))
	}
	if cc.Twitter.Enabled {
		out = append(out, channel.NewTwitter(channel.TwitterConfig{
			APIBase:            cc.Twitter.APIBase,
			BearerToken:        cc.Twitter.BearerToken,
			UserID:             cc.Twitter.UserID,
			AgentID:            defaultAgent,
			PollInterval:       time.Duration(cc.Twitter.PollingIntervalMinutes) * time.Minute,
			DryRun:             cc.Twitter.DryRun,
			RateLimitPerMinute: cc.Twitter.RateLimitPerMinute,
			Logger:             a.logger,
		}))
	}
	if cc.Telegram.Enabled {
		out = append(out, channel.NewTelegram(channel.TelegramConfig{
			Token:     cc.Telegram.Token,
			AgentID:   defaultAgent,
			AllowFrom: cc.Telegram.AllowFrom,
			Logger:    a.logger,
		}))
	}
	if cc.Slack.Enabled {
		out = append(out, channel.NewSlack(channel.SlackConfig{
			BotToken: cc.Slack.BotToken,
			AppToken: cc.Slack.AppToken,
			AgentID:  defaultAgent,
			Logger:   a.logger,
		}))
	}
	return out
}

// run starts the loop and channels and blocks until ctx ends, then drains.
func (a *app) run(ctx context.Context, channels []domain.Channel) {
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		a.loop.Run(ctx)
	}()

	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(ch domain.Channel) {
			defer wg.Done()
			a.logger.Info("channel starting", "channel", ch.Name())
			if err := ch.Start(ctx, a.bus); err != nil {
				a.logger.Error("channel error", "channel", ch.Name(), "err", err)
			}
		}(ch)
	}

	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = ch.Name()
	}
	a.logger.Info("personabot started. Press Ctrl+C to stop.", "channels", strings.Join(names, ","), "llm", a.llm.Name())

	<-ctx.Done()
	a.logger.Info("shutting down...")

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
		a.bus.Close()
		<-loopDone
	}()

	select {
	case <-done:
		a.logger.Info("shutdown complete")
	case <-time.After(shutdownTimeout):
		a.logger.Warn("shutdown timed out, forcing exit")
	}
}

// runInteractive runs one foreground channel; returning from it stops the app.
func (a *app) runInteractive(ctx context.Context, ch domain.Channel) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		a.loop.Run(ctx)
	}()

	err := ch.Start(ctx, a.bus)
	cancel()
	<-loopDone
	return err
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("memory store close failed", "err", err)
	}
}

// setupLogger replaces the package logger according to general settings.
// The returned func closes the log file, if any.
func setupLogger(g config.GeneralConfig) (func(), error) {
	var level slog.Level
	switch strings.ToLower(g.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	if g.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(g.LogFile), 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(g.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closeFn = func() { f.Close() }
	}

	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return closeFn, nil
}
