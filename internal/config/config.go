package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BridgeConfig holds configuration for the wallet bridge.
type BridgeConfig struct {
	BasePort       int           `yaml:"base_port"`
	WSPath         string        `yaml:"ws_path"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	MetricsEnabled bool          `yaml:"metrics_enabled"`
	LogLevel       string        `yaml:"log_level"`
	ConfigFile     string        `yaml:"-"`
}

// SetDefaults initializes c with built-in defaults.
func (c *BridgeConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.BasePort == 0 {
		c.BasePort = 40010
	}
	if c.WSPath == "" {
		c.WSPath = "/ws"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.ConfigFile == "" {
		c.ConfigFile = DefaultConfigPath("bridge.yaml")
	}
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *BridgeConfig) ApplyEnv() {
	if v := getEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("BRIDGE_BASE_PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BasePort = n
		}
	}
	if v := getEnv("BRIDGE_WS_PATH", ""); v != "" {
		c.WSPath = v
	}
	if v := getEnv("BRIDGE_REQUEST_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RequestTimeout = d
		}
	}
	if v := getEnv("BRIDGE_IDLE_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.IdleTimeout = d
		}
	}
	if v := getEnv("BRIDGE_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitComma(v)
	}
	if v := getEnv("BRIDGE_METRICS", ""); v != "" {
		c.MetricsEnabled = v == "1" || strings.EqualFold(v, "true")
	}
}

// BindFlagsFromCurrent binds command line flags using the current config values as defaults.
func (c *BridgeConfig) BindFlagsFromCurrent() {
	flag.StringVar(&c.ConfigFile, "config", c.ConfigFile, "bridge config file path")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	flag.IntVar(&c.BasePort, "base-port", c.BasePort, "first port probed for the bridge page; the WebSocket listener binds one above the page port")
	flag.StringVar(&c.WSPath, "ws-path", c.WSPath, "path the bridge page uses to establish the WebSocket connection")
	flag.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "maximum time to wait for a wallet response")
	flag.DurationVar(&c.IdleTimeout, "idle-timeout", c.IdleTimeout, "inactivity window after which the bridge disconnects")
	flag.BoolVar(&c.MetricsEnabled, "metrics", c.MetricsEnabled, "expose Prometheus metrics on the page server")
	flag.Func("allowed-origins", "comma separated list of allowed origins for the bridge page", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
}

// LoadFile populates the config from a YAML file.
func (c *BridgeConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func getEnv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
