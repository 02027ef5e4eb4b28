package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/just-nadir/justpos-sync/internal/config"
)

func TestListenerEndpoint(t *testing.T) {
	l := NewListener(config.StoreConfig{
		APIURL: "https://cloud.example.com",
		ID:     "s1",
	}, config.SyncConfig{}, nil)

	got, err := l.endpoint()
	require.NoError(t, err)
	assert.Equal(t, "wss://cloud.example.com/api/v1/sync/ws?store_id=s1", got)

	l = NewListener(config.StoreConfig{
		APIURL: "http://localhost:3000",
		ID:     "s1",
	}, config.SyncConfig{}, nil)

	got, err = l.endpoint()
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:3000/api/v1/sync/ws?store_id=s1", got)
}

func TestListenerWakesOnConnectAndMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "s1", r.URL.Query().Get("store_id"))

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"data_update"}`))

		// Hold the connection open until the client goes away.
		_, _, _ = conn.Read(ctx)
	}))
	defer srv.Close()

	wakes := make(chan struct{}, 8)
	l := NewListener(config.StoreConfig{
		APIURL:   srv.URL,
		ID:       "s1",
		APIToken: "tok",
	}, config.SyncConfig{
		ReconnectMin: "10ms",
		ReconnectMax: "50ms",
	}, func() { wakes <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	// One wake for the (re)connect, one for the pushed notification.
	for i := 0; i < 2; i++ {
		select {
		case <-wakes:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for wake %d", i+1)
		}
	}
}

func TestListenerReconnects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		// Drop the connection immediately; the listener should come back.
		conn.Close(websocket.StatusGoingAway, "bye")
	}))
	defer srv.Close()

	wakes := make(chan struct{}, 16)
	l := NewListener(config.StoreConfig{APIURL: srv.URL, ID: "s1"}, config.SyncConfig{
		ReconnectMin: "10ms",
		ReconnectMax: "50ms",
	}, func() { wakes <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	// Each successful connect wakes once; two wakes prove a reconnect.
	for i := 0; i < 2; i++ {
		select {
		case <-wakes:
		case <-time.After(5 * time.Second):
			t.Fatal("listener did not reconnect")
		}
	}
}
