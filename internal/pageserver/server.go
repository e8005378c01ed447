// Package pageserver serves the embedded wallet bridge page over plain HTTP
// on a dynamically selected port.
package pageserver

import (
	_ "embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/tokenfolio/walletbridge/internal/logx"
)

//go:embed page.html
var pageHTML string

// maxPortProbes bounds the upward port scan.
const maxPortProbes = 50

// Options configures the page server.
type Options struct {
	AllowedOrigins []string
	// Metrics, when non-nil, is mounted at /metrics.
	Metrics http.Handler
}

// Server serves exactly one static page at a caller-chosen route.
type Server struct {
	opts Options

	mu   sync.Mutex
	ln   net.Listener
	srv  *http.Server
	port int
}

// New constructs a stopped page server.
func New(opts Options) *Server {
	return &Server{opts: opts}
}

// Start probes ports upward from basePort until one is free, binds a
// listener there and serves the page at route. It returns the bound port.
// Calling Start while already listening returns the existing port.
func (s *Server) Start(basePort int, route string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.port, nil
	}

	ln, err := probe(basePort)
	if err != nil {
		return 0, err
	}

	r := chi.NewRouter()
	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	r.Get(route, servePage)
	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics)
	}

	srv := &http.Server{Handler: r}
	s.ln = ln
	s.srv = srv
	s.port = ln.Addr().(*net.TCPAddr).Port
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Log.Debug().Err(err).Msg("page server stopped")
		}
	}()
	logx.Log.Info().Int("port", s.port).Str("route", route).Msg("bridge page listening")
	return s.port, nil
}

func probe(base int) (net.Listener, error) {
	for port := base; port < base+maxPortProbes; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err == nil {
			return ln, nil
		}
	}
	return nil, fmt.Errorf("no free port in range %d-%d", base, base+maxPortProbes-1)
}

func servePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(pageHTML))
}

// IsListening reports whether the listener is bound.
func (s *Server) IsListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ln != nil
}

// Port returns the bound port, or 0 when stopped.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Stop closes the listener. Safe to call when already stopped.
func (s *Server) Stop() {
	s.mu.Lock()
	srv := s.srv
	ln := s.ln
	s.srv = nil
	s.ln = nil
	s.port = 0
	s.mu.Unlock()
	if srv != nil {
		_ = srv.Close()
	}
	// Close ln directly as well: srv.Close misses a listener the Serve
	// goroutine has not registered yet, and the port must be free when
	// Stop returns.
	if ln != nil {
		_ = ln.Close()
		logx.Log.Info().Msg("bridge page stopped")
	}
}
