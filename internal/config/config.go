// Package config handles configuration loading and validation for metacoord.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/tunnelmesh/metacoord/internal/placement"
	"github.com/tunnelmesh/metacoord/pkg/proto"
)

// Defaults for a coordinator started without a config file.
const (
	DefaultListen                 = ":9000"
	DefaultMaxWorkers             = 10
	DefaultTimeout                = 30 * time.Second
	DefaultMetricsCollectInterval = 15 * time.Second
)

// DefaultNodes is the storage node set used when none is configured.
var DefaultNodes = []string{"localhost:9001", "localhost:9002", "localhost:9003"}

// Duration is a time.Duration written as a string ("30s") in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string such as \"30s\": %w", value.Line, err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", value.Line, s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// PlacementConfig holds configuration for chunk placement.
type PlacementConfig struct {
	Nodes          []string `yaml:"nodes"`           // Storage node addresses (host:port), in rotation order
	CursorStride   int      `yaml:"cursor_stride"`   // Cursor positions consumed per chunk (default: 3)
	RecordReplicas bool     `yaml:"record_replicas"` // Return every selected node in "replicas"

	MaxChunksPerRequest int `yaml:"max_chunks_per_request"` // Larger upload counts are rejected (default: 1048576)
}

// MetricsConfig holds configuration for the Prometheus endpoint.
type MetricsConfig struct {
	Listen          string   `yaml:"listen"`           // Empty disables the endpoint
	CollectInterval Duration `yaml:"collect_interval"` // Table gauge sampling interval (default: 15s)
}

// AuditConfig holds configuration for audit events.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ServerConfig holds configuration for the coordinator.
type ServerConfig struct {
	Listen       string          `yaml:"listen"`
	MaxWorkers   int             `yaml:"max_workers"`
	ReadTimeout  Duration        `yaml:"read_timeout"`  // 0 disables
	WriteTimeout Duration        `yaml:"write_timeout"` // 0 disables
	LogLevel     string          `yaml:"log_level"`     // trace, debug, info, warn, error (empty keeps --log-level)
	Placement    PlacementConfig `yaml:"placement"`
	Metrics      MetricsConfig   `yaml:"metrics"`
	Audit        AuditConfig     `yaml:"audit"`
}

// DefaultServerConfig returns the configuration used when no file is given.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Listen:       DefaultListen,
		MaxWorkers:   DefaultMaxWorkers,
		ReadTimeout:  Duration(DefaultTimeout),
		WriteTimeout: Duration(DefaultTimeout),
		Placement: PlacementConfig{
			Nodes:        append([]string(nil), DefaultNodes...),
			CursorStride:        placement.DefaultCursorStride,
			MaxChunksPerRequest: proto.DefaultMaxChunks,
		},
		Metrics: MetricsConfig{
			CollectInterval: Duration(DefaultMetricsCollectInterval),
		},
		Audit: AuditConfig{Enabled: true},
	}
}

// LoadServerConfig loads server configuration from a YAML file.
// Keys absent from the file keep their DefaultServerConfig values.
func LoadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultServerConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	// Tidy node addresses
	for i, n := range cfg.Placement.Nodes {
		cfg.Placement.Nodes[i] = strings.TrimSpace(n)
	}

	return cfg, nil
}

// Validate checks if the server configuration is valid.
func (c *ServerConfig) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be at least 1")
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("read_timeout must not be negative")
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("write_timeout must not be negative")
	}
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("invalid log_level %q", c.LogLevel)
		}
	}
	if err := c.Placement.Validate(); err != nil {
		return fmt.Errorf("placement: %w", err)
	}
	if c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			return fmt.Errorf("invalid metrics.listen %q: %w", c.Metrics.Listen, err)
		}
		if c.Metrics.CollectInterval <= 0 {
			return fmt.Errorf("metrics.collect_interval must be positive")
		}
	}
	return nil
}

// Validate checks the node list and stride. An empty node list is valid; uploads are then
// answered with no placements.
func (p *PlacementConfig) Validate() error {
	if p.CursorStride < 1 {
		return fmt.Errorf("cursor_stride must be at least 1")
	}
	if p.MaxChunksPerRequest < 1 {
		return fmt.Errorf("max_chunks_per_request must be at least 1")
	}
	seen := make(map[string]struct{}, len(p.Nodes))
	for _, n := range p.Nodes {
		if err := placement.ValidateAddress(n); err != nil {
			return err
		}
		if _, dup := seen[n]; dup {
			return fmt.Errorf("duplicate node %q", n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

// PolicyConfig converts the placement section for placement.NewPolicy.
func (p *PlacementConfig) PolicyConfig() placement.PolicyConfig {
	return placement.PolicyConfig{
		CursorStride:   p.CursorStride,
		RecordReplicas: p.RecordReplicas,
		MaxChunks:      p.MaxChunksPerRequest,
	}
}

// ApplyLogLevel sets the global zerolog level from level. It reports whether level was
// recognised; an empty or unknown level leaves the global level unchanged.
func ApplyLogLevel(level string) bool {
	if level == "" {
		return false
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		return false
	}
	zerolog.SetGlobalLevel(parsed)
	return true
}
