package live

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/live", func(c *gin.Context) {
		c.Set("user_id", 1)
		c.Next()
	}, Handler(hub, "https://admin.lendery.app"))

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestHubBroadcastReachesSubscribers(t *testing.T) {
	hub, srv := startHub(t)

	first := dial(t, srv)
	defer first.Close()
	second := dial(t, srv)
	defer second.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	hub.Broadcast(EventRentalRequested, RentalEvent{RentalID: 4, ItemName: "Drill", Status: "pendiente_aprobacion"})

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))

		var got struct {
			Type string      `json:"type"`
			Data RentalEvent `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, EventRentalRequested, got.Type)
		assert.Equal(t, 4, got.Data.RentalID)
		assert.Equal(t, "Drill", got.Data.ItemName)
	}
}

func TestHubDropsClosedSubscribers(t *testing.T) {
	hub, srv := startHub(t)

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	// broadcasting with nobody listening is a no-op
	hub.Broadcast(EventTicketCreated, TicketEvent{TicketID: 1})
}

func TestUpgraderChecksOrigin(t *testing.T) {
	_, srv := startHub(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/live"

	header := map[string][]string{"Origin": {"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 403, resp.StatusCode)

	header = map[string][]string{"Origin": {"https://admin.lendery.app"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestNilHubBroadcastIsSafe(t *testing.T) {
	var hub *Hub
	assert.NotPanics(t, func() { hub.Broadcast(EventRentalApproved, nil) })
}

func TestHubStopReleasesClients(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/live", Handler(hub, "*"))
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-hub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	left := make(chan struct{})
	go func() {
		hub.leave(&Client{hub: hub})
		close(left)
	}()
	select {
	case <-left:
	case <-time.After(time.Second):
		t.Fatal("leaving a stopped hub blocked")
	}

	late := dial(t, srv)
	defer late.Close()
	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := late.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
