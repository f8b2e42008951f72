package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"personabot/internal/agent"
	"personabot/internal/domain"
	"personabot/internal/metrics"
	"personabot/internal/pipeline"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	networkMaxBodySize  = "1M"
	networkReplyTimeout = 120 * time.Second
)

// AgentDirectory answers whether an agent id is known.
type AgentDirectory interface {
	Has(agentID string) bool
}

// Network serves the HTTP API: POST /agent/input, /health, an optional
// metrics endpoint and an optional websocket at /agent/ws.
type Network struct {
	addr         string
	agents       AgentDirectory
	websocket    bool
	metricsPath  string
	replyTimeout time.Duration
	logger       *slog.Logger

	bus  domain.MessageBus
	echo *echo.Echo
	ws   *wsHub
}

// NetworkConfig configures the Network channel.
type NetworkConfig struct {
	Host        string
	Port        int
	Agents      AgentDirectory
	WebSocket   bool
	MetricsPath string // empty disables the metrics endpoint
	Logger      *slog.Logger
}

func NewNetwork(cfg NetworkConfig) *Network {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	n := &Network{
		addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		agents:       cfg.Agents,
		websocket:    cfg.WebSocket,
		metricsPath:  cfg.MetricsPath,
		replyTimeout: networkReplyTimeout,
		logger:       cfg.Logger,
	}
	n.echo = n.newServer()
	return n
}

func (n *Network) Name() string { return "network" }

// Handler exposes the HTTP handler, mainly for tests.
func (n *Network) Handler() http.Handler { return n.echo }

// Start serves HTTP until ctx ends.
func (n *Network) Start(ctx context.Context, bus domain.MessageBus) error {
	n.bus = bus

	n.logger.Info("network channel starting", "addr", n.addr, "websocket", n.websocket)

	errCh := make(chan error, 1)
	go func() {
		if err := n.echo.Start(n.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		if n.ws != nil {
			n.ws.closeAll()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return n.echo.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("network channel: %w", err)
	}
}

func (n *Network) newServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(networkMaxBodySize))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			n.logger.Debug("http request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			)
			return nil
		},
	}))
	n.RegisterRoutes(e)
	return e
}

// RegisterRoutes registers the network channel's routes with e.
func (n *Network) RegisterRoutes(e *echo.Echo) {
	e.POST("/agent/input", n.handleInput)
	e.GET("/health", n.handleHealth)
	if n.metricsPath != "" {
		e.GET(n.metricsPath, echo.WrapHandler(metrics.Collector.Handler()))
	}
	if n.websocket {
		n.ws = newWSHub(n)
		e.GET("/agent/ws", n.ws.handleUpgrade)
	}
}

type inputRequest struct {
	Input struct {
		AgentID   string           `json:"agentId"`
		UserID    string           `json:"userId"`
		RoomID    string           `json:"roomId"`
		Type      domain.InputType `json:"type"`
		Text      string           `json:"text"`
		ImageURLs []string         `json:"imageUrls"`
	} `json:"input"`
}

// toInput fills network defaults: source NETWORK, type TEXT and the
// <agentId>_<userId> room.
func (r inputRequest) toInput() domain.InputObject {
	in := domain.InputObject{
		Source:     domain.SourceNetwork,
		AgentID:    r.Input.AgentID,
		UserID:     r.Input.UserID,
		RoomID:     r.Input.RoomID,
		Type:       r.Input.Type,
		Text:       r.Input.Text,
		ImageURLs:  r.Input.ImageURLs,
		ReceivedAt: time.Now(),
	}
	if in.Type == "" {
		in.Type = domain.TypeText
	}
	if in.RoomID == "" && in.AgentID != "" && in.UserID != "" {
		in.RoomID = domain.NetworkRoomID(in.AgentID, in.UserID)
	}
	return in
}

// POST /agent/input
func (n *Network) handleInput(c echo.Context) error {
	var req inputRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	in := req.toInput()

	if in.AgentID != "" && !n.agents.Has(in.AgentID) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Agent not found"})
	}

	res := newCollectingResponder()
	done := make(chan struct{})
	var once sync.Once
	n.bus.Publish(domain.Envelope{
		Input:     in,
		Responder: res,
		Done:      func() { once.Do(func() { close(done) }) },
	})

	timer := time.NewTimer(n.replyTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		n.logger.Error("agent input timed out", "agent", in.AgentID, "room", in.RoomID)
		return c.JSON(http.StatusGatewayTimeout, map[string]string{"error": "request timed out"})
	case <-c.Request().Context().Done():
		return nil
	}

	content, sent, err := res.outcome()
	switch {
	case sent:
		return c.String(http.StatusOK, content)
	case err != nil:
		status, body := errorStatus(err)
		if status == http.StatusInternalServerError {
			n.logger.Error("agent input failed", "agent", in.AgentID, "room", in.RoomID, "err", err)
		}
		return c.JSON(status, map[string]string{"error": body})
	default:
		n.logger.Error("agent produced no response", "agent", in.AgentID, "room", in.RoomID)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
}

// errorStatus maps a pipeline error onto an HTTP status and public message.
func errorStatus(err error) (int, string) {
	var ve *pipeline.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Error()
	case errors.Is(err, agent.ErrAgentNotFound):
		return http.StatusNotFound, "Agent not found"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// GET /health
func (n *Network) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": metrics.Collector.Uptime().Round(time.Second).String(),
	})
}

// collectingResponder records the terminal outcome of one run.
type collectingResponder struct {
	mu      sync.Mutex
	content string
	sent    bool
	err     error
}

func newCollectingResponder() *collectingResponder { return &collectingResponder{} }

func (r *collectingResponder) Send(ctx context.Context, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.content, r.sent = content, true
	return nil
}

func (r *collectingResponder) Error(ctx context.Context, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	return nil
}

func (r *collectingResponder) outcome() (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.content, r.sent, r.err
}
