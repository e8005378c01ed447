package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tokenfolio/walletbridge/internal/bridge"
	"github.com/tokenfolio/walletbridge/internal/config"
	"github.com/tokenfolio/walletbridge/internal/ipc"
	"github.com/tokenfolio/walletbridge/internal/logx"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.BridgeConfig
	// Resolve config with precedence: defaults < file < env < args
	cfg.SetDefaults()
	cfg.ApplyEnv()
	// Allow --config to override the file path before loading it
	for i := 1; i < len(os.Args); i++ {
		a := os.Args[i]
		if a == "--config" && i+1 < len(os.Args) {
			cfg.ConfigFile = os.Args[i+1]
			break
		}
		if strings.HasPrefix(a, "--config=") {
			cfg.ConfigFile = strings.TrimPrefix(a, "--config=")
			break
		}
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	cfg.ApplyEnv()
	cfg.BindFlagsFromCurrent()
	flag.Parse()

	if *showVersion {
		fmt.Printf("walletbridge %s (%s, %s)\n", version, buildSHA, buildDate)
		return
	}

	logx.Configure(cfg.LogLevel)

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		preg := prometheus.NewRegistry()
		bridge.RegisterMetrics(preg)
		metricsHandler = promhttp.HandlerFor(preg, promhttp.HandlerOpts{})
	}

	wb := ipc.New(cfg, ipc.LogSink{}, ipc.SystemOpener{}, metricsHandler)
	if err := wb.OpenBridge(); err != nil {
		logx.Log.Fatal().Err(err).Msg("open bridge")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logx.Log.Info().Msg("shutting down")
	wb.OnUserLogout()
}
