package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"personabot/internal/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// WSMessage is the JSON protocol of /agent/ws.
// Clients send {"type":"input","requestId":"...","input":{...}}; the server
// answers each input with one "response" or "error" frame.
type WSMessage struct {
	Type      string          `json:"type"` // "input" | "response" | "error" | "status"
	RequestID string          `json:"requestId,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Content   string          `json:"content,omitempty"`
	Error     string          `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsHub struct {
	n *Network

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// wsClient serializes writes to one connection.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSHub(n *Network) *wsHub {
	return &wsHub{n: n, clients: make(map[*wsClient]struct{})}
}

func (h *wsHub) handleUpgrade(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.n.logger.Error("websocket upgrade failed", "err", err)
		return nil
	}

	client := &wsClient{conn: conn}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	h.n.logger.Info("websocket client connected", "remote", c.RealIP())
	client.send(WSMessage{Type: "status", Content: "connected"})

	defer func() {
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
		conn.Close()
		h.n.logger.Info("websocket client disconnected", "remote", c.RealIP())
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.n.logger.Error("websocket read error", "err", err)
			}
			return nil
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			client.send(WSMessage{Type: "error", Error: "invalid message"})
			continue
		}
		if msg.Type != "input" {
			continue
		}
		if msg.RequestID == "" {
			msg.RequestID = uuid.NewString()
		}
		h.handleInput(client, msg)
	}
}

func (h *wsHub) handleInput(client *wsClient, msg WSMessage) {
	var req inputRequest
	if len(msg.Input) == 0 || json.Unmarshal(msg.Input, &req.Input) != nil {
		client.send(WSMessage{Type: "error", RequestID: msg.RequestID, Error: "invalid input"})
		return
	}
	in := req.toInput()
	if in.AgentID != "" && !h.n.agents.Has(in.AgentID) {
		client.send(WSMessage{Type: "error", RequestID: msg.RequestID, Error: "Agent not found"})
		return
	}

	h.n.bus.Publish(domain.Envelope{
		Input:     in,
		Responder: &wsResponder{client: client, requestID: msg.RequestID},
	})
}

func (h *wsHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.conn.Close()
	}
}

func (c *wsClient) send(msg WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

type wsResponder struct {
	client    *wsClient
	requestID string
}

func (r *wsResponder) Send(ctx context.Context, content string) error {
	return r.client.send(WSMessage{Type: "response", RequestID: r.requestID, Content: content})
}

func (r *wsResponder) Error(ctx context.Context, err error) error {
	_, msg := errorStatus(err)
	return r.client.send(WSMessage{Type: "error", RequestID: r.requestID, Error: msg})
}
