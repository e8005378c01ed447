package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/tokenfolio/walletbridge/internal/logx"
)

// Notifier receives bridge-originated notifications destined for the
// embedding process. It is supplied at construction time so the bridge is
// never observable in a partially wired state.
type Notifier interface {
	NotifyConnectionStatus(status string)
	ForwardWalletEvent(eventName string, eventData json.RawMessage)
}

// Options configures a bridge server.
type Options struct {
	WSPath         string
	RequestTimeout time.Duration
	IdleTimeout    time.Duration
}

func (o *Options) setDefaults() {
	if o.WSPath == "" {
		o.WSPath = "/ws"
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.IdleTimeout == 0 {
		o.IdleTimeout = 5 * time.Minute
	}
}

// Server owns the WebSocket listener, the idle timer and the
// pending-request table. It relays JSON-RPC calls to whichever bridge page
// connection is currently active.
type Server struct {
	opts     Options
	notifier Notifier
	cm       *ConnectionManager
	pending  *pendingTable
	handler  *MessageHandler

	// acceptMu serializes register/takeover so two connecting tabs can
	// never interleave their takeover sequences.
	acceptMu sync.Mutex

	mu   sync.Mutex
	ln   net.Listener
	srv  *http.Server
	idle *time.Timer
}

// NewServer constructs a bridge server. Each server owns its own
// ConnectionManager so independent instances can coexist under test.
func NewServer(opts Options, notifier Notifier) *Server {
	opts.setDefaults()
	s := &Server{opts: opts, notifier: notifier, pending: newPendingTable()}
	s.cm = NewConnectionManager(notifier, func(connID uint64) {
		if n := s.pending.cancelConn(connID, ErrConnectionClosed); n > 0 {
			logx.Log.Info().Uint64("conn_id", connID).Int("cancelled", n).Msg("cancelled pending requests")
		}
	})
	s.handler = newMessageHandler(s.pending, s.cm, notifier)
	return s
}

// Manager exposes the connection manager for status queries.
func (s *Server) Manager() *ConnectionManager { return s.cm }

// Start binds the WebSocket listener on 127.0.0.1:port. Calling Start while
// already listening is a no-op.
func (s *Server) Start(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("bind websocket listener: %w", err)
	}
	r := chi.NewRouter()
	r.Get(s.opts.WSPath, s.acceptWS)
	srv := &http.Server{Handler: r}
	s.ln = ln
	s.srv = srv
	s.idle = time.AfterFunc(s.opts.IdleTimeout, s.onIdle)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Log.Debug().Err(err).Msg("websocket server stopped")
		}
	}()
	logx.Log.Info().Int("port", ln.Addr().(*net.TCPAddr).Port).Str("path", s.opts.WSPath).Msg("bridge websocket listening")
	return nil
}

func (s *Server) acceptWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The page is served one port below the WebSocket listener, so the
		// Origin host never matches and must be allowed explicitly.
		OriginPatterns: []string{"127.0.0.1:*", "localhost:*"},
	})
	if err != nil {
		return
	}

	s.acceptMu.Lock()
	conn := s.cm.Register(c)
	s.cm.Takeover(conn.ID())
	s.acceptMu.Unlock()

	connectionsTotal.Inc()
	s.touchIdle()
	logx.Log.Info().Uint64("conn_id", conn.ID()).Str("remote_addr", r.RemoteAddr).Msg("bridge page connected")
	go s.readLoop(conn)
}

func (s *Server) readLoop(c *Conn) {
	ctx := context.Background()
	defer func() {
		c.close(websocket.StatusNormalClosure, "closing")
		s.cm.HandleClose(c)
	}()
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}
		s.touchIdle()
		s.handler.Handle(data)
	}
}

// touchIdle resets the idle timer. Every inbound frame and every outbound
// send lands here.
func (s *Server) touchIdle() {
	s.mu.Lock()
	if s.idle != nil {
		s.idle.Reset(s.opts.IdleTimeout)
	}
	s.mu.Unlock()
}

func (s *Server) onIdle() {
	idleDisconnectsTotal.Inc()
	logx.Log.Info().Dur("idle_timeout", s.opts.IdleTimeout).Msg("idle timeout reached, disconnecting bridge")
	s.Disconnect()
}

// Call relays one JSON-RPC request to the active connection and waits for
// the correlated response. It fails immediately with ErrNotConnected when
// no connection is active, and with ErrTimeout when the wallet does not
// answer within the request window.
func (s *Server) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	conn := s.cm.Active()
	if conn == nil {
		return nil, ErrNotConnected
	}
	pr := s.pending.add(conn.ID())
	req := Request{ID: pr.id, JSONRPC: jsonrpcVersion, Method: method, Params: params}
	s.touchIdle()
	if err := conn.writeJSON(req); err != nil {
		s.pending.remove(pr.id)
		return nil, fmt.Errorf("send request: %w", err)
	}
	logx.Log.Debug().Str("rpc_id", pr.id).Str("method", method).Uint64("conn_id", pr.connID).Msg("request sent")

	timer := time.AfterFunc(s.opts.RequestTimeout, func() {
		if s.pending.settle(pr.id, callResult{err: ErrTimeout}) {
			requestTimeoutsTotal.Inc()
			logx.Log.Warn().Str("rpc_id", pr.id).Str("method", method).Msg("request timed out")
		}
	})
	defer timer.Stop()

	select {
	case res := <-pr.ch:
		return res.result, res.err
	case <-ctx.Done():
		if s.pending.settle(pr.id, callResult{err: ctx.Err()}) {
			return nil, ctx.Err()
		}
		// Lost the race against a concurrent settlement.
		res := <-pr.ch
		return res.result, res.err
	}
}

// SendNotification pushes a one-way message to the active connection. With
// no active connection it logs and drops the message; a failed send is
// returned to the caller, who decides severity.
func (s *Server) SendNotification(n Notification) error {
	conn := s.cm.Active()
	if conn == nil {
		logx.Log.Warn().Str("type", n.Type).Msg("no active connection, dropping notification")
		return nil
	}
	s.touchIdle()
	return conn.writeJSON(n)
}

// IsClientReady probes the page with a ping round trip. It returns false on
// any failure, including timeout.
func (s *Server) IsClientReady(ctx context.Context) bool {
	res, err := s.Call(ctx, pingMethod, nil)
	if err != nil {
		logx.Log.Debug().Err(err).Msg("readiness probe failed")
		return false
	}
	var reply string
	if err := json.Unmarshal(res, &reply); err != nil {
		return false
	}
	return reply == pongSentinel
}

// IsConnected reports whether a page connection is currently active.
func (s *Server) IsConnected() bool { return s.cm.ActiveID() != 0 }

// IsListening reports whether the WebSocket listener is bound.
func (s *Server) IsListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ln != nil
}

// Port returns the bound port, or 0 when stopped.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return 0
	}
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Disconnect tears the bridge down: it stops the idle timer, rejects every
// pending request, evicts the active connection and closes the listener.
// No caller is left hanging. Safe to call repeatedly.
func (s *Server) Disconnect() {
	s.mu.Lock()
	if s.idle != nil {
		s.idle.Stop()
		s.idle = nil
	}
	srv := s.srv
	ln := s.ln
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()

	if n := s.pending.drain(ErrBridgeDisconnected); n > 0 {
		logx.Log.Info().Int("rejected", n).Msg("rejected pending requests on disconnect")
	}
	conn := s.cm.Active()
	s.cm.ClearAll()
	if conn != nil {
		conn.close(websocket.StatusGoingAway, "bridge disconnected")
	}
	if srv != nil {
		_ = srv.Close()
	}
	// srv.Close only closes listeners Serve has already registered; closing
	// ln directly releases the port even when Disconnect races the Serve
	// goroutine. The double close is harmless.
	if ln != nil {
		_ = ln.Close()
		logx.Log.Info().Msg("bridge websocket stopped")
	}
}

// Stop is an alias for Disconnect kept for symmetry with the page server.
func (s *Server) Stop() { s.Disconnect() }
