// Package config loads the server's own settings: transport, lobby
// password, and session limits. It follows the teacher's config package
// shape (a defaulted struct, a YAML overlay, environment overrides) rather
// than the configuration-loading internals the spec treats as an external
// collaborator.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"gopkg.in/yaml.v3"

	"tablehall/internal/constants"
)

// Server holds every setting the networking core needs at startup.
type Server struct {
	// Network
	BindPort   int  `yaml:"bind_port"`
	EnableIPv6 bool `yaml:"enable_ipv6"`
	EnableSCTP bool `yaml:"enable_sctp"`

	// Lobby
	Password string `yaml:"password"`

	// Session limits
	MaxSessions    int           `yaml:"max_sessions"`
	CloseDelay     time.Duration `yaml:"close_delay"`
	RecvTimeout    time.Duration `yaml:"recv_timeout"`
	ConnectQueue   int           `yaml:"connect_queue"`
	SendQueueDepth int           `yaml:"send_queue_depth"`

	// Logging
	LogLevel string `yaml:"log_level"` // debug, info, warn, error (default: info)
}

// Default returns Server populated with the constants this core was
// specified against.
func Default() Server {
	return Server{
		BindPort:       7850,
		EnableIPv6:     false,
		EnableSCTP:     false,
		Password:       "",
		MaxSessions:    constants.ServerMaxNumSessions,
		CloseDelay:     constants.ServerCloseSessionDelay,
		RecvTimeout:    constants.RecvTimeout,
		ConnectQueue:   constants.ConnectQueueCapacity,
		SendQueueDepth: constants.SendQueueSize,
		LogLevel:       "info",
	}
}

// Load reads a YAML file at path, overlaying it onto Default(). A missing
// file is not an error: the defaults are returned as-is, matching the
// teacher's LoadGameServer/LoadLoginServer behavior. Environment variables
// (loaded from a .env file via godotenv's autoload side effect, same as
// the pack's canasta-server) take precedence over both.
func Load(path string) (Server, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("config: reading %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Server) applyEnvOverrides() {
	if v := os.Getenv("TABLEHALL_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BindPort = n
		}
	}
	if v := os.Getenv("TABLEHALL_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("TABLEHALL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("TABLEHALL_ENABLE_IPV6"); v != "" {
		c.EnableIPv6 = v == "1" || v == "true"
	}
}

func (c *Server) validate() error {
	if c.BindPort < 1 || c.BindPort > 65535 {
		return fmt.Errorf("invalid bind_port: %d", c.BindPort)
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1")
	}
	if c.RecvTimeout <= 0 {
		return fmt.Errorf("recv_timeout must be positive")
	}
	return nil
}
