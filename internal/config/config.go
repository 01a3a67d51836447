package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	uberconfig "go.uber.org/config"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

// Config stores runtime configuration for the client, the desktop shell and the mock peer.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	Options OptionsConfig `yaml:"options"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Peer    PeerConfig    `yaml:"peer"`
}

type ServerConfig struct {
	URL                string `yaml:"url"`
	HandshakeTimeoutMs int    `yaml:"handshakeTimeoutMs"`
	WriteTimeoutMs     int    `yaml:"writeTimeoutMs"`
	PingIntervalMs     int    `yaml:"pingIntervalMs"`
}

func (c ServerConfig) HandshakeTimeout() time.Duration {
	return millis(c.HandshakeTimeoutMs)
}

func (c ServerConfig) WriteTimeout() time.Duration {
	return millis(c.WriteTimeoutMs)
}

func (c ServerConfig) PingInterval() time.Duration {
	return millis(c.PingIntervalMs)
}

type SessionConfig struct {
	MaxAttempts     int  `yaml:"maxAttempts"`
	BaseDelayMs     int  `yaml:"baseDelayMs"`
	MaxDelayMs      int  `yaml:"maxDelayMs"`
	ResumeRecording bool `yaml:"resumeRecording"`
}

func (c SessionConfig) BaseDelay() time.Duration {
	return millis(c.BaseDelayMs)
}

func (c SessionConfig) MaxDelay() time.Duration {
	return millis(c.MaxDelayMs)
}

// OptionsConfig holds the session options announced on every connect.
type OptionsConfig struct {
	Privacy bool `yaml:"privacy"`
}

// LoggingConfig mirrors the zap settings the logger honours.
type LoggingConfig struct {
	Level       string   `yaml:"level"`
	Development bool     `yaml:"development"`
	Encoding    string   `yaml:"encoding"`
	OutputPaths []string `yaml:"outputPaths"`
}

type MetricsConfig struct {
	Prefix           string `yaml:"prefix"`
	ReportIntervalMs int    `yaml:"reportIntervalMs"`
}

func (c MetricsConfig) ReportInterval() time.Duration {
	return millis(c.ReportIntervalMs)
}

type PeerConfig struct {
	Addr              string `yaml:"addr"`
	SegmentIntervalMs int    `yaml:"segmentIntervalMs"`
}

func (c PeerConfig) SegmentInterval() time.Duration {
	return millis(c.SegmentIntervalMs)
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			URL:                "ws://localhost:8000/ws",
			HandshakeTimeoutMs: 10000,
			WriteTimeoutMs:     5000,
			PingIntervalMs:     15000,
		},
		Session: SessionConfig{
			MaxAttempts:     5,
			BaseDelayMs:     1000,
			MaxDelayMs:      10000,
			ResumeRecording: true,
		},
		Options: OptionsConfig{Privacy: true},
		Logging: LoggingConfig{
			Level:       "info",
			Encoding:    "console",
			OutputPaths: []string{"stderr"},
		},
		Metrics: MetricsConfig{
			Prefix:           "liveassist",
			ReportIntervalMs: 10000,
		},
		Peer: PeerConfig{
			Addr:              ":8000",
			SegmentIntervalMs: 3000,
		},
	}
}

// ResolvePath picks the config file: the explicit path, then LIVEASSIST_CONFIG, then the
// per-user default when it exists. An empty result means defaults and environment only.
func ResolvePath(explicit string) (string, error) {
	if path := firstNonEmpty(explicit, os.Getenv("LIVEASSIST_CONFIG")); path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file %s: %w", path, err)
		}
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", nil
	}
	return firstExisting(filepath.Join(home, ".config", "liveassist", "config.yaml")), nil
}

// Load layers defaults, the YAML file at path (if any), and LIVEASSIST_* environment
// variables, then clamps invalid numbers and validates the result.
func Load(path string) (Config, error) {
	resolved, err := ResolvePath(path)
	if err != nil {
		return Config{}, err
	}

	options := []uberconfig.YAMLOption{uberconfig.Static(Default())}
	if resolved != "" {
		options = append(options, uberconfig.File(resolved))
	}
	options = append(options, uberconfig.Expand(os.LookupEnv))

	provider, err := uberconfig.NewYAML(options...)
	if err != nil {
		return Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	var cfg Config
	if err := provider.Get(uberconfig.Root).Populate(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read configuration: %w", err)
	}

	applyEnv(&cfg)
	clamp(&cfg)
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	cfg.Server.URL = firstNonEmpty(os.Getenv("LIVEASSIST_SERVER_URL"), os.Getenv("LIVEASSIST_URL"), cfg.Server.URL)
	cfg.Server.HandshakeTimeoutMs = envOrDefaultInt("LIVEASSIST_HANDSHAKE_TIMEOUT_MS", cfg.Server.HandshakeTimeoutMs)
	cfg.Server.WriteTimeoutMs = envOrDefaultInt("LIVEASSIST_WRITE_TIMEOUT_MS", cfg.Server.WriteTimeoutMs)
	cfg.Server.PingIntervalMs = envOrDefaultInt("LIVEASSIST_PING_INTERVAL_MS", cfg.Server.PingIntervalMs)

	cfg.Session.MaxAttempts = envOrDefaultInt("LIVEASSIST_MAX_ATTEMPTS", cfg.Session.MaxAttempts)
	cfg.Session.BaseDelayMs = firstNonNegativeInt("LIVEASSIST_BASE_DELAY_MS", "LIVEASSIST_RECONNECT_DELAY_MS", cfg.Session.BaseDelayMs)
	cfg.Session.MaxDelayMs = envOrDefaultInt("LIVEASSIST_MAX_DELAY_MS", cfg.Session.MaxDelayMs)
	cfg.Session.ResumeRecording = envOrDefaultBool("LIVEASSIST_RESUME_RECORDING", cfg.Session.ResumeRecording)

	cfg.Options.Privacy = envOrDefaultBool("LIVEASSIST_PRIVACY", cfg.Options.Privacy)

	cfg.Logging.Level = envOrDefault("LIVEASSIST_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Encoding = envOrDefault("LIVEASSIST_LOG_ENCODING", cfg.Logging.Encoding)
	cfg.Logging.Development = envOrDefaultBool("LIVEASSIST_LOG_DEVELOPMENT", cfg.Logging.Development)
	if paths := strings.TrimSpace(os.Getenv("LIVEASSIST_LOG_OUTPUT")); paths != "" {
		cfg.Logging.OutputPaths = splitList(paths)
	}

	cfg.Metrics.Prefix = envOrDefault("LIVEASSIST_METRICS_PREFIX", cfg.Metrics.Prefix)

	cfg.Peer.Addr = envOrDefault("LIVEASSIST_PEER_ADDR", cfg.Peer.Addr)
	cfg.Peer.SegmentIntervalMs = envOrDefaultInt("LIVEASSIST_SEGMENT_INTERVAL_MS", cfg.Peer.SegmentIntervalMs)
}

func clamp(cfg *Config) {
	defaults := Default()

	if cfg.Server.HandshakeTimeoutMs <= 0 {
		cfg.Server.HandshakeTimeoutMs = defaults.Server.HandshakeTimeoutMs
	}
	if cfg.Server.WriteTimeoutMs <= 0 {
		cfg.Server.WriteTimeoutMs = defaults.Server.WriteTimeoutMs
	}
	if cfg.Server.PingIntervalMs < 0 {
		cfg.Server.PingIntervalMs = 0
	}
	if cfg.Session.MaxAttempts <= 0 {
		cfg.Session.MaxAttempts = defaults.Session.MaxAttempts
	}
	if cfg.Session.BaseDelayMs <= 0 {
		cfg.Session.BaseDelayMs = defaults.Session.BaseDelayMs
	}
	if cfg.Session.MaxDelayMs < cfg.Session.BaseDelayMs {
		cfg.Session.MaxDelayMs = cfg.Session.BaseDelayMs
	}
	if cfg.Metrics.ReportIntervalMs <= 0 {
		cfg.Metrics.ReportIntervalMs = defaults.Metrics.ReportIntervalMs
	}
	if cfg.Peer.SegmentIntervalMs <= 0 {
		cfg.Peer.SegmentIntervalMs = defaults.Peer.SegmentIntervalMs
	}
	if len(cfg.Logging.OutputPaths) == 0 {
		cfg.Logging.OutputPaths = defaults.Logging.OutputPaths
	}
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var err error

	if u, parseErr := url.Parse(strings.TrimSpace(c.Server.URL)); parseErr != nil {
		err = multierr.Append(err, fmt.Errorf("server.url: %w", parseErr))
	} else {
		switch u.Scheme {
		case "ws", "wss", "http", "https":
		default:
			err = multierr.Append(err, fmt.Errorf("server.url: unsupported scheme %q", u.Scheme))
		}
		if u.Host == "" {
			err = multierr.Append(err, errors.New("server.url: missing host"))
		}
	}

	if _, levelErr := zapcore.ParseLevel(c.Logging.Level); levelErr != nil {
		err = multierr.Append(err, fmt.Errorf("logging.level: %w", levelErr))
	}
	switch c.Logging.Encoding {
	case "json", "console":
	default:
		err = multierr.Append(err, fmt.Errorf("logging.encoding: unsupported encoding %q", c.Logging.Encoding))
	}

	if strings.TrimSpace(c.Peer.Addr) == "" {
		err = multierr.Append(err, errors.New("peer.addr: must not be empty"))
	}

	return err
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func firstNonNegativeInt(primary string, secondary string, fallback int) int {
	for _, key := range []string{primary, secondary} {
		value := strings.TrimSpace(os.Getenv(key))
		if value == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err == nil && parsed >= 0 {
			return parsed
		}
	}
	return fallback
}
