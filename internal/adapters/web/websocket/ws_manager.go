package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lcalzada-xor/fleetmap/internal/core/services/presentation"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/session"
	"github.com/lcalzada-xor/fleetmap/internal/logger"
	"github.com/lcalzada-xor/fleetmap/internal/telemetry"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	maxMessageSize = 512
	sessionBacklog = 16
)

// Message types pushed to the map.
const (
	TypeMap                = "map"
	TypeSessionInvalidated = "session.invalidated"
	TypeSessionRenewed     = "session.renewed"
)

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ViewSource supplies the view sent to a client right after it connects.
type ViewSource interface {
	MapView(ctx context.Context) (*presentation.MapView, error)
}

type client struct {
	conn *websocket.Conn
	addr string
	// writes to conn are serialized by mu
	mu sync.Mutex
}

// WSManager pushes map views and session changes to connected browsers.
// Map views are coalesced: a slow client only ever receives the latest one.
type WSManager struct {
	views    ViewSource
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}

	pendingMu sync.Mutex
	latest    *presentation.MapView
	sessions  []WSMessage
	wake      chan struct{}
}

var (
	_ presentation.ViewListener = (*WSManager)(nil)
	_ session.Listener          = (*WSManager)(nil)
)

func NewWSManager(views ViewSource, allowedOrigins []string) *WSManager {
	m := &WSManager{
		views:   views,
		log:     logger.WithComponent("websocket"),
		clients: make(map[*client]struct{}),
		wake:    make(chan struct{}, 1),
	}
	m.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     m.originChecker(allowedOrigins),
	}
	return m
}

// originChecker allows same-origin requests and the configured origins.
func (m *WSManager) originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if set["*"] || set[strings.ToLower(origin)] {
			return true
		}
		if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
			return true
		}
		m.log.Warn().Str("origin", origin).Msg("Rejected WebSocket origin")
		return false
	}
}

// Start runs the broadcaster until ctx is done, then closes every client.
func (m *WSManager) Start(ctx context.Context) {
	go m.processAndBroadcast(ctx)
}

// Clients returns the number of connected clients.
func (m *WSManager) Clients() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

func (m *WSManager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Debug().Err(err).Msg("Upgrade failed")
		return
	}
	c := &client{conn: conn, addr: r.RemoteAddr}

	m.mu.Lock()
	m.clients[c] = struct{}{}
	telemetry.WebSocketClients.Set(float64(len(m.clients)))
	m.mu.Unlock()

	m.log.Info().Str("remote", c.addr).Msg("WebSocket connected")

	if m.views != nil {
		if view, err := m.views.MapView(r.Context()); err == nil && view != nil {
			m.send(c, WSMessage{Type: TypeMap, Payload: view})
		}
	}

	go m.readPump(c)
}

// readPump discards client messages and detects disconnects.
func (m *WSManager) readPump(c *client) {
	defer m.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (m *WSManager) remove(c *client) {
	m.mu.Lock()
	_, ok := m.clients[c]
	delete(m.clients, c)
	telemetry.WebSocketClients.Set(float64(len(m.clients)))
	m.mu.Unlock()

	if ok {
		c.conn.Close()
		m.log.Info().Str("remote", c.addr).Msg("WebSocket disconnected")
	}
}

// OnMapView implements presentation.ViewListener.
func (m *WSManager) OnMapView(_ context.Context, view *presentation.MapView) {
	m.pendingMu.Lock()
	m.latest = view
	m.pendingMu.Unlock()
	m.signal()
}

// OnSessionInvalidated implements session.Listener.
func (m *WSManager) OnSessionInvalidated(_ context.Context, state session.State) {
	m.queue(WSMessage{Type: TypeSessionInvalidated, Payload: state})
}

// OnSessionRenewed implements session.Listener.
func (m *WSManager) OnSessionRenewed(_ context.Context, state session.State) {
	m.queue(WSMessage{Type: TypeSessionRenewed, Payload: state})
}

func (m *WSManager) queue(msg WSMessage) {
	m.pendingMu.Lock()
	if len(m.sessions) >= sessionBacklog {
		m.sessions = m.sessions[1:]
	}
	m.sessions = append(m.sessions, msg)
	m.pendingMu.Unlock()
	m.signal()
}

func (m *WSManager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *WSManager) processAndBroadcast(ctx context.Context) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case <-ping.C:
			m.pingAll()
		case <-m.wake:
			m.flush()
		}
	}
}

// flush sends queued session messages first, then the latest map view.
func (m *WSManager) flush() {
	m.pendingMu.Lock()
	sessions := m.sessions
	m.sessions = nil
	view := m.latest
	m.latest = nil
	m.pendingMu.Unlock()

	for _, msg := range sessions {
		m.broadcastMessage(msg)
	}
	if view != nil {
		m.broadcastMessage(WSMessage{Type: TypeMap, Payload: view})
	}
}

func (m *WSManager) snapshot() []*client {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*client, 0, len(m.clients))
	for c := range m.clients {
		out = append(out, c)
	}
	return out
}

func (m *WSManager) broadcastMessage(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		m.log.Error().Err(err).Str("type", msg.Type).Msg("JSON marshal error")
		return
	}
	for _, c := range m.snapshot() {
		if err := m.write(c, websocket.TextMessage, data); err != nil {
			m.remove(c)
		}
	}
}

func (m *WSManager) send(c *client, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		m.log.Error().Err(err).Str("type", msg.Type).Msg("JSON marshal error")
		return
	}
	if err := m.write(c, websocket.TextMessage, data); err != nil {
		m.remove(c)
	}
}

func (m *WSManager) pingAll() {
	for _, c := range m.snapshot() {
		if err := m.write(c, websocket.PingMessage, nil); err != nil {
			m.remove(c)
		}
	}
}

func (m *WSManager) write(c *client, messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

func (m *WSManager) closeAll() {
	for _, c := range m.snapshot() {
		_ = m.write(c, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		m.remove(c)
	}
}
