package pageserver

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestServePage(t *testing.T) {
	s := New(Options{})
	port, err := s.Start(0, "/bridge")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(s.Stop)
	if !s.IsListening() || s.Port() != port {
		t.Fatalf("expected listener on %d", port)
	}

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/bridge", port))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("expected html got %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Wallet Bridge") {
		t.Fatalf("unexpected page body")
	}

	// Other routes stay unserved.
	resp2, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/other", port))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp2.Body.Close() }()
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp2.StatusCode)
	}
}

func TestStartProbesPastBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("occupy port: %v", err)
	}
	defer func() { _ = busy.Close() }()
	base := busy.Addr().(*net.TCPAddr).Port

	s := New(Options{})
	port, err := s.Start(base, "/bridge")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(s.Stop)
	if port == base {
		t.Fatalf("probe returned the occupied port %d", port)
	}
	if port < base {
		t.Fatalf("probe went downward: %d < %d", port, base)
	}
}

func TestStartIdempotent(t *testing.T) {
	s := New(Options{})
	port, err := s.Start(0, "/bridge")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(s.Stop)
	again, err := s.Start(0, "/bridge")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if again != port {
		t.Fatalf("expected same port %d got %d", port, again)
	}
}

func TestStopIdempotent(t *testing.T) {
	s := New(Options{})
	s.Stop() // stopping a stopped server is safe
	if _, err := s.Start(0, "/bridge"); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Stop()
	s.Stop()
	if s.IsListening() || s.Port() != 0 {
		t.Fatalf("expected stopped server")
	}
	if _, err := s.Start(0, "/bridge"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	s.Stop()
}

func TestStopReleasesPortImmediately(t *testing.T) {
	for i := 0; i < 5; i++ {
		s := New(Options{})
		port, err := s.Start(0, "/bridge")
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		s.Stop()
		if _, err := s.Start(port, "/bridge"); err != nil {
			t.Fatalf("restart on %d after stop: %v", port, err)
		}
		if s.Port() != port {
			t.Fatalf("expected to rebind %d got %d", port, s.Port())
		}
		s.Stop()
	}
}

func TestMetricsMount(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(Options{Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})})
	port, err := s.Start(0, "/bridge")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(s.Stop)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/metrics", port))
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}
}
