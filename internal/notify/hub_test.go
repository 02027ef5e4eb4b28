package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	hub := NewHub()
	hub.Start()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		hub.Subscribe(r.URL.Query().Get("store_id"), conn)
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server, storeID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?store_id=" + storeID
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func TestHubNotifiesRoom(t *testing.T) {
	hub, srv := newHubServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv, "s1")
	require.Eventually(t, func() bool { return hub.ClientCount("s1") == 1 },
		2*time.Second, 10*time.Millisecond)

	hub.Notify("s1")

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, EventDataUpdate, msg.Type)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestHubRoomIsolation(t *testing.T) {
	hub, srv := newHubServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dial(t, ctx, srv, "s1")
	connB := dial(t, ctx, srv, "s2")
	require.Eventually(t, func() bool {
		return hub.ClientCount("s1") == 1 && hub.ClientCount("s2") == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Notify("s1")

	_, _, err := connA.Read(ctx)
	require.NoError(t, err)

	// The other store's terminal must stay silent.
	quiet, cancelQuiet := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancelQuiet()
	_, _, err = connB.Read(quiet)
	assert.Error(t, err)
}

func TestHubRemovesDisconnectedClient(t *testing.T) {
	hub, srv := newHubServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv, "s1")
	require.Eventually(t, func() bool { return hub.ClientCount("s1") == 1 },
		2*time.Second, 10*time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return hub.ClientCount("s1") == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestNotifyWithoutSubscribersIsSafe(t *testing.T) {
	hub := NewHub()
	hub.Start()
	defer hub.Stop()

	hub.Notify("nobody-home")
}
