package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/tokenfolio/walletbridge/internal/logx"
)

// Connection status values reported to the embedding process.
const (
	StatusConnected    = "connected"
	StatusReconnected  = "reconnected"
	StatusDisconnected = "disconnected"
)

const writeTimeout = 2 * time.Second

// Conn wraps one accepted WebSocket connection with its process-unique id.
// Writes are serialized and bounded so a stalled page cannot block the bridge.
type Conn struct {
	id uint64
	ws *websocket.Conn
	mu sync.Mutex
}

// ID returns the connection's monotonic id.
func (c *Conn) ID() uint64 { return c.id }

func (c *Conn) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.Write(ctx, websocket.MessageText, b)
}

func (c *Conn) close(code websocket.StatusCode, reason string) {
	_ = c.ws.Close(code, reason)
}

// ConnectionManager is the single source of truth for which connection is
// active. At most one connection is active at any instant; a closing stale
// connection can never regress the active id.
type ConnectionManager struct {
	mu         sync.Mutex
	nextID     uint64
	activeID   uint64
	conns      map[uint64]*Conn
	everActive bool

	notifier Notifier
	cancel   func(connID uint64)
}

// NewConnectionManager constructs a manager. cancel is invoked with the id
// of any connection whose pending requests must be rejected; it is called
// without the manager lock held.
func NewConnectionManager(notifier Notifier, cancel func(connID uint64)) *ConnectionManager {
	return &ConnectionManager{
		conns:    make(map[uint64]*Conn),
		notifier: notifier,
		cancel:   cancel,
	}
}

// Register assigns the next monotonic id and stores the mapping. It does
// not change which connection is active.
func (m *ConnectionManager) Register(ws *websocket.Conn) *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c := &Conn{id: m.nextID, ws: ws}
	m.conns[c.id] = c
	return c
}

// Takeover makes newID the active connection. If another connection was
// active it receives a best-effort reconnected notice, is closed, and all
// its pending requests are cancelled.
func (m *ConnectionManager) Takeover(newID uint64) {
	m.mu.Lock()
	oldID := m.activeID
	var old *Conn
	if oldID != 0 && oldID != newID {
		old = m.conns[oldID]
		delete(m.conns, oldID)
	}
	reconnect := m.everActive
	m.activeID = newID
	m.everActive = true
	m.mu.Unlock()

	if old != nil {
		if err := old.writeJSON(Notification{Type: NotifyReconnected}); err != nil {
			logx.Log.Debug().Err(err).Uint64("conn_id", oldID).Msg("reconnected notice failed")
		}
		old.close(websocket.StatusPolicyViolation, "superseded")
		takeoversTotal.Inc()
		logx.Log.Info().Uint64("old_conn_id", oldID).Uint64("conn_id", newID).Msg("connection takeover")
	}
	if old != nil && m.cancel != nil {
		m.cancel(oldID)
	}

	status := StatusConnected
	if reconnect {
		status = StatusReconnected
	}
	activeConnections.Set(1)
	m.notifier.NotifyConnectionStatus(status)
}

// HandleClose records that a connection closed. Closing the active
// connection transitions to idle and cancels its pending requests; a
// superseded connection finishing its own close only cancels its requests.
func (m *ConnectionManager) HandleClose(c *Conn) {
	m.mu.Lock()
	if _, ok := m.conns[c.id]; !ok {
		// Already evicted by a takeover or ClearAll.
		m.mu.Unlock()
		return
	}
	delete(m.conns, c.id)
	wasActive := c.id == m.activeID
	if wasActive {
		m.activeID = 0
	}
	m.mu.Unlock()

	if m.cancel != nil {
		m.cancel(c.id)
	}
	if wasActive {
		activeConnections.Set(0)
		m.notifier.NotifyConnectionStatus(StatusDisconnected)
		logx.Log.Info().Uint64("conn_id", c.id).Msg("active connection closed")
	}
}

// ClearAll forces the idle state and drops every mapping. Used on full
// shutdown; emits a disconnected status if a connection was active.
func (m *ConnectionManager) ClearAll() {
	m.mu.Lock()
	wasActive := m.activeID != 0
	m.activeID = 0
	m.conns = make(map[uint64]*Conn)
	m.mu.Unlock()

	if wasActive {
		activeConnections.Set(0)
		m.notifier.NotifyConnectionStatus(StatusDisconnected)
	}
}

// ActiveID returns the active connection id, or 0 when disconnected.
func (m *ConnectionManager) ActiveID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// Active returns the active connection, or nil when disconnected.
func (m *ConnectionManager) Active() *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeID == 0 {
		return nil
	}
	return m.conns[m.activeID]
}
