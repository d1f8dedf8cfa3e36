package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the rpcpool configuration
type Config struct {
	Endpoints      []string      `yaml:"endpoints"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Protocol       string        `yaml:"protocol"` // thrift | pgwire
	Thrift         ThriftConfig  `yaml:"thrift"`
	PGWire         PGWireConfig  `yaml:"pgwire"`
	Pool           PoolConfig    `yaml:"pool"`
	HTTP           HTTPConfig    `yaml:"http"`
}

// ThriftConfig selects the Thrift transport and protocol
type ThriftConfig struct {
	Transport     string        `yaml:"transport"` // buffered | framed
	Protocol      string        `yaml:"protocol"`  // binary | compact
	SocketTimeout time.Duration `yaml:"socket_timeout"`
}

// PGWireConfig holds PostgreSQL startup parameters
type PGWireConfig struct {
	User            string `yaml:"user"`
	Database        string `yaml:"database"`
	ApplicationName string `yaml:"application_name"`
}

// PoolConfig represents connection pool settings
type PoolConfig struct {
	Mode            string        `yaml:"mode"` // blocking | suspending
	MaxConnections  int           `yaml:"max_connections"`
	CheckoutTimeout time.Duration `yaml:"checkout_timeout"`
}

// HTTPConfig represents the admin HTTP listener
type HTTPConfig struct {
	Address string `yaml:"address"`
}

const (
	ProtocolThrift = "thrift"
	ProtocolPGWire = "pgwire"

	ModeBlocking   = "blocking"
	ModeSuspending = "suspending"
)

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		ConnectTimeout: 30 * time.Second,
		Protocol:       ProtocolThrift,
		Thrift: ThriftConfig{
			Transport: "buffered",
			Protocol:  "binary",
		},
		PGWire: PGWireConfig{
			User:            "postgres",
			Database:        "postgres",
			ApplicationName: "rpcpool",
		},
		Pool: PoolConfig{
			Mode:            ModeSuspending,
			MaxConnections:  10,
			CheckoutTimeout: 30 * time.Second,
		},
		HTTP: HTTPConfig{
			Address: ":8089",
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(configPath, config); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, config)
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(config *Config) error {
	if endpoints := os.Getenv("RPCPOOL_ENDPOINTS"); endpoints != "" {
		config.Endpoints = config.Endpoints[:0]
		for _, ep := range strings.Split(endpoints, ",") {
			if ep = strings.TrimSpace(ep); ep != "" {
				config.Endpoints = append(config.Endpoints, ep)
			}
		}
	}

	if timeout := os.Getenv("RPCPOOL_CONNECT_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("RPCPOOL_CONNECT_TIMEOUT: %w", err)
		}
		config.ConnectTimeout = d
	}

	if mode := os.Getenv("RPCPOOL_POOL_MODE"); mode != "" {
		config.Pool.Mode = mode
	}

	if addr := os.Getenv("RPCPOOL_HTTP_ADDR"); addr != "" {
		config.HTTP.Address = addr
	}
	return nil
}

// normalize lowercases the enumerated settings so later comparisons can be exact
func (c *Config) normalize() {
	c.Protocol = strings.ToLower(strings.TrimSpace(c.Protocol))
	c.Thrift.Transport = strings.ToLower(strings.TrimSpace(c.Thrift.Transport))
	c.Thrift.Protocol = strings.ToLower(strings.TrimSpace(c.Thrift.Protocol))
	c.Pool.Mode = strings.ToLower(strings.TrimSpace(c.Pool.Mode))
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required")
	}
	for _, ep := range c.Endpoints {
		if _, _, err := net.SplitHostPort(ep); err != nil {
			return fmt.Errorf("invalid endpoint %q: %w", ep, err)
		}
	}

	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}

	switch c.Protocol {
	case ProtocolThrift:
		if !oneOf(c.Thrift.Transport, "buffered", "framed") {
			return fmt.Errorf("invalid thrift transport: %s", c.Thrift.Transport)
		}
		if !oneOf(c.Thrift.Protocol, "binary", "compact") {
			return fmt.Errorf("invalid thrift protocol: %s", c.Thrift.Protocol)
		}
	case ProtocolPGWire:
		if c.PGWire.User == "" {
			return fmt.Errorf("pgwire user cannot be empty")
		}
	default:
		return fmt.Errorf("invalid protocol: %s", c.Protocol)
	}

	if !oneOf(c.Pool.Mode, ModeBlocking, ModeSuspending) {
		return fmt.Errorf("invalid pool mode: %s", c.Pool.Mode)
	}
	if c.Pool.MaxConnections < 1 {
		return fmt.Errorf("pool max connections must be at least 1")
	}

	if c.HTTP.Address == "" {
		return fmt.Errorf("http address cannot be empty")
	}
	return nil
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

// String returns a string representation of the configuration (for logging)
func (c *Config) String() string {
	return fmt.Sprintf("Config{Endpoints: %v, Protocol: %s, Pool: %s/%d, HTTP: %s}",
		c.Endpoints, c.Protocol, c.Pool.Mode, c.Pool.MaxConnections, c.HTTP.Address)
}
