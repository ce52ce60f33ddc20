package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Server holds the matchmaking server configuration.
type Server struct {
	Host string `yaml:"host" env:"STRANGERS_HOST"`
	Port int    `yaml:"port" env:"PORT"`

	// AllowedOrigins lists origins accepted for CORS and websocket upgrades.
	// "*" allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins" env:"STRANGERS_ALLOWED_ORIGINS" envSeparator:","`

	Websocket WebsocketConfig `yaml:"websocket"`
	Log       LogConfig       `yaml:"log"`
}

// WebsocketConfig bounds each client connection.
type WebsocketConfig struct {
	SendBuffer     int           `yaml:"send_buffer" env:"STRANGERS_WS_SEND_BUFFER"`
	MaxMessageSize int64         `yaml:"max_message_size" env:"STRANGERS_WS_MAX_MESSAGE_SIZE"`
	WriteWait      time.Duration `yaml:"write_wait" env:"STRANGERS_WS_WRITE_WAIT"`
	PongWait       time.Duration `yaml:"pong_wait" env:"STRANGERS_WS_PONG_WAIT"`
	PingPeriod     time.Duration `yaml:"ping_period" env:"STRANGERS_WS_PING_PERIOD"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// DefaultServer returns the built-in server defaults.
func DefaultServer() *Server {
	return &Server{
		Host:           "0.0.0.0",
		Port:           3000,
		AllowedOrigins: []string{"*"},
		Websocket: WebsocketConfig{
			SendBuffer:     256,
			MaxMessageSize: 64 * 1024,
			WriteWait:      10 * time.Second,
			PongWait:       60 * time.Second,
			PingPeriod:     54 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadServer reads configuration with the following priority:
// 1. Environment variables - highest priority
// 2. The YAML file at path, when path is non-empty and the file exists
// 3. Hardcoded defaults - lowest priority
func LoadServer(path string) (*Server, error) {
	cfg := DefaultServer()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Server) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if len(c.AllowedOrigins) == 0 {
		return errors.New("allowed_origins must not be empty")
	}
	ws := c.Websocket
	if ws.SendBuffer <= 0 {
		return fmt.Errorf("websocket.send_buffer must be positive, got %d", ws.SendBuffer)
	}
	if ws.MaxMessageSize <= 0 {
		return fmt.Errorf("websocket.max_message_size must be positive, got %d", ws.MaxMessageSize)
	}
	if ws.WriteWait <= 0 || ws.PongWait <= 0 || ws.PingPeriod <= 0 {
		return errors.New("websocket timeouts must be positive")
	}
	if ws.PingPeriod >= ws.PongWait {
		return fmt.Errorf("websocket.ping_period (%s) must be less than pong_wait (%s)", ws.PingPeriod, ws.PongWait)
	}
	return nil
}

// OverridePort applies a command line port and validates the result.
// Zero leaves the configured port alone.
func (c *Server) OverridePort(port int) error {
	if port == 0 {
		return nil
	}
	c.Port = port
	return c.Validate()
}

// Addr returns the listen address.
func (c *Server) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AllowsAnyOrigin reports whether the wildcard origin is configured.
func (c *Server) AllowsAnyOrigin() bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}
