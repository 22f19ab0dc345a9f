package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aegisshield/chain-monitor/internal/metrics"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(nil, metrics.NewCollector(prometheus.NewRegistry()), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws", hub.HandleWebSocket)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return hub, server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBroadcastReachesConnectedClient(t *testing.T) {
	hub, server := newTestHub(t)
	conn := dial(t, server)

	require.Eventually(t, func() bool {
		return hub.ConnectedClients() == 1
	}, time.Second, 10*time.Millisecond)

	hub.Broadcast(EventAgentUpdate, map[string]string{"name": "Chain Monitor"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.Equal(t, EventAgentUpdate, event.Type)
	assert.False(t, event.Timestamp.IsZero())

	data, ok := event.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Chain Monitor", data["name"])
}

func TestBroadcastWithoutClientsDoesNotBlock(t *testing.T) {
	hub, _ := newTestHub(t)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Broadcast(EventStatsUpdate, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked with no connected clients")
	}
}

func TestUpgradeAfterShutdownDoesNotBlock(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hub := NewHub(nil, metrics.NewCollector(prometheus.NewRegistry()), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws", hub.HandleWebSocket)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	cancel()
	select {
	case <-hub.done:
	case <-time.After(time.Second):
		t.Fatal("hub loop did not stop")
	}

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The handler must reject the registration and close the connection
	// instead of parking on the register channel forever.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.Zero(t, hub.ConnectedClients())
}

func TestDisconnectUpdatesClientCount(t *testing.T) {
	hub, server := newTestHub(t)
	conn := dial(t, server)

	require.Eventually(t, func() bool {
		return hub.ConnectedClients() == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return hub.ConnectedClients() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
