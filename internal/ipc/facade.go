package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/tokenfolio/walletbridge/internal/bridge"
	"github.com/tokenfolio/walletbridge/internal/config"
	"github.com/tokenfolio/walletbridge/internal/logx"
	"github.com/tokenfolio/walletbridge/internal/pageserver"
)

// openAttempts bounds the search for a free page/WebSocket port pair.
const openAttempts = 3

// WalletBridge is the facade the embedding process drives. It owns the
// static page server and the RPC bridge server and keeps them bound to
// adjacent ports.
type WalletBridge struct {
	cfg    config.BridgeConfig
	opener Opener
	pages  *pageserver.Server
	rpc    *bridge.Server

	mu  sync.Mutex
	url string
}

// New wires the bridge servers to the given sink and opener. metrics, when
// non-nil, is mounted on the page server.
func New(cfg config.BridgeConfig, sink Sink, opener Opener, metrics http.Handler) *WalletBridge {
	return &WalletBridge{
		cfg:    cfg,
		opener: opener,
		pages: pageserver.New(pageserver.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			Metrics:        metrics,
		}),
		rpc: bridge.NewServer(bridge.Options{
			WSPath:         cfg.WSPath,
			RequestTimeout: cfg.RequestTimeout,
			IdleTimeout:    cfg.IdleTimeout,
		}, notifier{sink: sink}),
	}
}

// OpenBridge starts the page server on a probed port and the WebSocket
// server one port above, then opens the page externally. When both servers
// are already up it only re-opens the page.
func (w *WalletBridge) OpenBridge() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// After an idle disconnect the page server may still be up; rebind the
	// WebSocket listener next to it and reuse the existing page session. If
	// the neighbor port was taken in the meantime, give the session up and
	// probe a fresh pair below.
	if w.pages.IsListening() {
		err := w.rpc.Start(w.pages.Port() + 1)
		if err == nil {
			return w.opener.OpenExternal(w.url)
		}
		logx.Log.Warn().Err(err).Int("port", w.pages.Port()+1).Msg("websocket rebind failed, starting a new session")
		w.pages.Stop()
	}

	// A fresh route per session keeps stale tabs from rediscovering the page.
	route := "/" + uuid.NewString()
	base := w.cfg.BasePort
	for i := 0; i < openAttempts; i++ {
		port, err := w.pages.Start(base, route)
		if err != nil {
			return err
		}
		if err := w.rpc.Start(port + 1); err != nil {
			// The page port was free but its neighbor was not; resume the
			// probe above the occupied pair.
			logx.Log.Debug().Err(err).Int("port", port+1).Msg("websocket port busy, probing higher")
			w.pages.Stop()
			base = port + 2
			continue
		}
		w.url = fmt.Sprintf("http://127.0.0.1:%d%s", port, route)
		logx.Log.Info().Str("url", w.url).Msg("wallet bridge open")
		return w.opener.OpenExternal(w.url)
	}
	return fmt.Errorf("no adjacent free port pair above %d", w.cfg.BasePort)
}

// IsHTTPListening reports whether the page server is bound.
func (w *WalletBridge) IsHTTPListening() bool { return w.pages.IsListening() }

// IsWSListening reports whether the WebSocket server is bound.
func (w *WalletBridge) IsWSListening() bool { return w.rpc.IsListening() }

// IsClientReady probes the connected page for liveness.
func (w *WalletBridge) IsClientReady(ctx context.Context) bool {
	return w.rpc.IsClientReady(ctx)
}

// Call relays one JSON-RPC request to the wallet provider.
func (w *WalletBridge) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return w.rpc.Call(ctx, method, params)
}

// OnUserLogout asks the page to close its tab, then tears everything down.
// The close-tab notice is best effort; teardown proceeds regardless.
func (w *WalletBridge) OnUserLogout() {
	if err := w.rpc.SendNotification(bridge.Notification{Type: bridge.NotifyCloseTab}); err != nil {
		logx.Log.Warn().Err(err).Msg("close tab notice failed")
	}
	w.rpc.Stop()
	w.pages.Stop()
	w.mu.Lock()
	w.url = ""
	w.mu.Unlock()
}
