package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Wyydra/callrelay/internal/core/service"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

const (
	envVarPort                 = "PORT"
	envVarListenAddr           = "LISTEN_ADDR"
	envVarLogLevel             = "LOG_LEVEL"
	envVarLogFormat            = "LOG_FORMAT"
	envVarStaticDir            = "STATIC_DIR"
	envVarCandidateBufferLimit = "CANDIDATE_BUFFER_LIMIT"
	envVarSendQueueSize        = "SEND_QUEUE_SIZE"
	envVarMaxMessageBytes      = "MAX_MESSAGE_BYTES"
	envVarWSPingInterval       = "WS_PING_INTERVAL"
	envVarWSIdleTimeout        = "WS_IDLE_TIMEOUT"
	envVarShutdownTimeout      = "SHUTDOWN_TIMEOUT"
	envVarValidatePayloads     = "VALIDATE_PAYLOADS"
	envVarICEServers           = "ICE_SERVERS"
	envVarAllowedOrigins       = "ALLOWED_ORIGINS"

	DefaultListenAddr           = ":8080"
	DefaultLogLevel             = "info"
	DefaultLogFormat            = LogFormatConsole
	DefaultStaticDir            = "./static"
	DefaultCandidateBufferLimit = service.DefaultCandidateBufferLimit
	DefaultSendQueueSize        = 256
	DefaultMaxMessageBytes      = int64(64 * 1024)
	DefaultWSPingInterval       = 20 * time.Second
	DefaultWSIdleTimeout        = 60 * time.Second
	DefaultShutdownTimeout      = 5 * time.Second
)

const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

type Config struct {
	ListenAddr string
	LogLevel   string
	LogFormat  string
	// StaticDir is served at / when non-empty.
	StaticDir string

	CandidateBufferLimit int
	SendQueueSize        int
	MaxMessageBytes      int64
	WSPingInterval       time.Duration
	WSIdleTimeout        time.Duration
	ShutdownTimeout      time.Duration

	ValidatePayloads bool
	ICEServers       []webrtc.ICEServer
	// AllowedOrigins restricts websocket upgrades and CORS; empty or "*" allows all.
	AllowedOrigins []string
}

func Default() Config {
	return Config{
		ListenAddr:           DefaultListenAddr,
		LogLevel:             DefaultLogLevel,
		LogFormat:            DefaultLogFormat,
		StaticDir:            DefaultStaticDir,
		CandidateBufferLimit: DefaultCandidateBufferLimit,
		SendQueueSize:        DefaultSendQueueSize,
		MaxMessageBytes:      DefaultMaxMessageBytes,
		WSPingInterval:       DefaultWSPingInterval,
		WSIdleTimeout:        DefaultWSIdleTimeout,
		ShutdownTimeout:      DefaultShutdownTimeout,
	}
}

// Load builds a Config from defaults overridden by the environment.
func Load() (Config, error) {
	return FromEnv(os.LookupEnv)
}

func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if port, ok := lookup(envVarPort); ok && port != "" {
		cfg.ListenAddr = ":" + port
	}
	if v, ok := lookup(envVarListenAddr); ok && v != "" {
		cfg.ListenAddr = v
	}
	if v, ok := lookup(envVarLogLevel); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := lookup(envVarLogFormat); ok && v != "" {
		cfg.LogFormat = v
	}
	if v, ok := lookup(envVarStaticDir); ok {
		cfg.StaticDir = v
	}

	var err error
	if cfg.CandidateBufferLimit, err = intVar(lookup, envVarCandidateBufferLimit, cfg.CandidateBufferLimit); err != nil {
		return Config{}, err
	}
	if cfg.SendQueueSize, err = intVar(lookup, envVarSendQueueSize, cfg.SendQueueSize); err != nil {
		return Config{}, err
	}
	maxBytes, err := intVar(lookup, envVarMaxMessageBytes, int(cfg.MaxMessageBytes))
	if err != nil {
		return Config{}, err
	}
	cfg.MaxMessageBytes = int64(maxBytes)
	if cfg.WSPingInterval, err = durationVar(lookup, envVarWSPingInterval, cfg.WSPingInterval); err != nil {
		return Config{}, err
	}
	if cfg.WSIdleTimeout, err = durationVar(lookup, envVarWSIdleTimeout, cfg.WSIdleTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = durationVar(lookup, envVarShutdownTimeout, cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if v, ok := lookup(envVarValidatePayloads); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarValidatePayloads, v, err)
		}
		cfg.ValidatePayloads = b
	}
	if v, ok := lookup(envVarICEServers); ok {
		cfg.ICEServers = ParseICEServers(v)
	}
	if v, ok := lookup(envVarAllowedOrigins); ok {
		cfg.AllowedOrigins = splitList(v)
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen address is required")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if c.LogFormat != LogFormatConsole && c.LogFormat != LogFormatJSON {
		return fmt.Errorf("invalid log format %q (want %s or %s)", c.LogFormat, LogFormatConsole, LogFormatJSON)
	}
	if c.CandidateBufferLimit < 0 {
		return fmt.Errorf("candidate buffer limit must be >= 0, got %d", c.CandidateBufferLimit)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("send queue size must be > 0, got %d", c.SendQueueSize)
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("max message bytes must be > 0, got %d", c.MaxMessageBytes)
	}
	if c.WSPingInterval <= 0 || c.WSIdleTimeout <= 0 {
		return errors.New("websocket ping interval and idle timeout must be > 0")
	}
	if c.WSPingInterval >= c.WSIdleTimeout {
		return fmt.Errorf("websocket ping interval (%s) must be shorter than idle timeout (%s)", c.WSPingInterval, c.WSIdleTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be > 0, got %s", c.ShutdownTimeout)
	}
	return nil
}

func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// ParseICEServers reads a comma separated list of ICE URLs. Credentials may be
// attached to a TURN URL as turn:user:pass@host:port.
func ParseICEServers(raw string) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	for _, u := range splitList(raw) {
		server := webrtc.ICEServer{URLs: []string{u}}
		if scheme, rest, ok := strings.Cut(u, ":"); ok && strings.HasPrefix(scheme, "turn") {
			if creds, host, ok := strings.Cut(rest, "@"); ok {
				if user, pass, ok := strings.Cut(creds, ":"); ok {
					server.URLs = []string{scheme + ":" + host}
					server.Username = user
					server.Credential = pass
				}
			}
		}
		servers = append(servers, server)
	}
	return servers
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intVar(lookup func(string) (string, bool), name string, def int) (int, error) {
	v, ok := lookup(name)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return n, nil
}

func durationVar(lookup func(string) (string, bool), name string, def time.Duration) (time.Duration, error) {
	v, ok := lookup(name)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return d, nil
}
