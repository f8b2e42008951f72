package channel

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"personabot/internal/agent"
	"personabot/internal/domain"
	"personabot/internal/pipeline"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNetwork(t *testing.T, handle func(env domain.Envelope)) (*Network, *funcBus) {
	t.Helper()
	n := NewNetwork(NetworkConfig{
		Host:        "127.0.0.1",
		Port:        0,
		Agents:      agentSet{"stern": true},
		WebSocket:   true,
		MetricsPath: "/metrics",
		Logger:      testLogger(),
	})
	bus := newFuncBus(handle)
	n.bus = bus
	return n, bus
}

func postInput(t *testing.T, n *Network, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/agent/input", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	n.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNetworkInputReturnsReply(t *testing.T) {
	n, bus := newTestNetwork(t, func(env domain.Envelope) {
		_ = env.Responder.Send(context.Background(), "ECHO: "+env.Input.Text)
	})

	rec := postInput(t, n, `{"input":{"agentId":"stern","userId":"u1","text":"hi"}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ECHO: hi", rec.Body.String())

	inputs := bus.inputs()
	require.Len(t, inputs, 1)
	assert.Equal(t, domain.SourceNetwork, inputs[0].Source)
	assert.Equal(t, domain.TypeText, inputs[0].Type)
	assert.Equal(t, "stern_u1", inputs[0].RoomID)
}

func TestNetworkInputKeepsExplicitRoom(t *testing.T) {
	n, bus := newTestNetwork(t, func(env domain.Envelope) {
		_ = env.Responder.Send(context.Background(), "ok")
	})

	rec := postInput(t, n, `{"input":{"agentId":"stern","userId":"u1","roomId":"r9","text":"hi"}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "r9", bus.inputs()[0].RoomID)
}

func TestNetworkUnknownAgent(t *testing.T) {
	n, bus := newTestNetwork(t, nil)

	rec := postInput(t, n, `{"input":{"agentId":"nobody","userId":"u1","text":"hi"}}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Agent not found")
	assert.Empty(t, bus.inputs())
}

func TestNetworkBadBody(t *testing.T) {
	n, _ := newTestNetwork(t, nil)
	rec := postInput(t, n, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNetworkErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"validation", &pipeline.ValidationError{Field: "text", Reason: "is required"}, http.StatusBadRequest, "invalid input"},
		{"unknown agent", agent.ErrAgentNotFound, http.StatusNotFound, "Agent not found"},
		{"stage failure", &pipeline.StageError{Stage: "createMemory", Err: errors.New("disk full")}, http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, _ := newTestNetwork(t, func(env domain.Envelope) {
				_ = env.Responder.Error(context.Background(), tt.err)
			})

			rec := postInput(t, n, `{"input":{"agentId":"stern","userId":"u1","text":"hi"}}`)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
			assert.NotContains(t, rec.Body.String(), "disk full")
		})
	}
}

func TestNetworkNoOutcome(t *testing.T) {
	n, _ := newTestNetwork(t, func(env domain.Envelope) {})

	rec := postInput(t, n, `{"input":{"agentId":"stern","userId":"u1","text":"hi"}}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNetworkReplyTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	n, _ := newTestNetwork(t, func(env domain.Envelope) { <-block })
	n.replyTimeout = 20 * time.Millisecond

	rec := postInput(t, n, `{"input":{"agentId":"stern","userId":"u1","text":"hi"}}`)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestNetworkHealthAndMetrics(t *testing.T) {
	n, _ := newTestNetwork(t, nil)

	rec := httptest.NewRecorder()
	n.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = httptest.NewRecorder()
	n.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "personabot_pipeline_runs_total")
}

func TestNetworkWebSocket(t *testing.T) {
	n, _ := newTestNetwork(t, func(env domain.Envelope) {
		_ = env.Responder.Send(context.Background(), "ECHO: "+env.Input.Text)
	})
	srv := httptest.NewServer(n.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/agent/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
	}

	var status WSMessage
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, "status", status.Type)

	require.NoError(t, conn.WriteJSON(WSMessage{
		Type:      "input",
		RequestID: "req-1",
		Input:     []byte(`{"agentId":"stern","userId":"u1","text":"hello"}`),
	}))

	var reply WSMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "response", reply.Type)
	assert.Equal(t, "req-1", reply.RequestID)
	assert.Equal(t, "ECHO: hello", reply.Content)

	require.NoError(t, conn.WriteJSON(WSMessage{
		Type:      "input",
		RequestID: "req-2",
		Input:     []byte(`{"agentId":"ghost","userId":"u1","text":"hello"}`),
	}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
	assert.Equal(t, "Agent not found", reply.Error)
}
