package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/presentation"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/session"
)

type staticViews struct {
	view *presentation.MapView
}

func (s staticViews) MapView(context.Context) (*presentation.MapView, error) {
	return s.view, nil
}

func startManager(t *testing.T, views ViewSource, origins ...string) (*WSManager, *httptest.Server) {
	t.Helper()
	m := NewWSManager(views, origins)
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	srv := httptest.NewServer(http.HandlerFunc(m.HandleWebSocket))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return m, srv
}

func dial(t *testing.T, srv *httptest.Server, origin string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWSManager_SendsCurrentViewOnConnect(t *testing.T) {
	view := &presentation.MapView{StoreVersion: 3, Stats: domain.Stats{Total: 2}}
	_, srv := startManager(t, staticViews{view: view})

	conn := dial(t, srv, "")
	msg := readMessage(t, conn)

	assert.Equal(t, TypeMap, msg["type"])
	payload := msg["payload"].(map[string]interface{})
	assert.Equal(t, float64(3), payload["store_version"])
}

func TestWSManager_PushesViewsAndSession(t *testing.T) {
	m, srv := startManager(t, nil)
	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return m.Clients() == 1 }, time.Second, 5*time.Millisecond)

	m.OnSessionInvalidated(context.Background(), session.State{Reason: "directory rejected credentials"})
	m.OnMapView(context.Background(), &presentation.MapView{StoreVersion: 1})
	m.OnMapView(context.Background(), &presentation.MapView{StoreVersion: 2})

	first := readMessage(t, conn)
	assert.Equal(t, TypeSessionInvalidated, first["type"])

	// views are coalesced; the last one always arrives
	var last map[string]interface{}
	for {
		last = readMessage(t, conn)
		require.Equal(t, TypeMap, last["type"])
		if last["payload"].(map[string]interface{})["store_version"] == float64(2) {
			break
		}
	}
}

func TestWSManager_OriginCheck(t *testing.T) {
	_, srv := startManager(t, nil, "https://console.example.com")

	dial(t, srv, "https://console.example.com")
	dial(t, srv, srv.URL)

	header := http.Header{}
	header.Set("Origin", "https://evil.example.net")
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWSManager_RemovesClosedClients(t *testing.T) {
	m, srv := startManager(t, nil)
	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return m.Clients() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return m.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
