// Package config loads the replicator demo binaries' configuration from
// YAML, following the teacher's config-struct-plus-loader shape.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vireo-net/replicator/internal/observability/log"
)

// TransportKind selects which concrete transport.Peer a binary constructs.
type TransportKind string

const (
	TransportQUIC      TransportKind = "quic"
	TransportWebSocket TransportKind = "websocket"
)

// Config is the top-level shape loaded from a YAML file or defaulted.
type Config struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Transport      TransportKind `yaml:"transport"`
	TickInterval   time.Duration `yaml:"tick_interval"`
	LogLevel       string        `yaml:"log_level"`
	MaxMessageSize int           `yaml:"max_message_size"`
}

// Default returns a Config good enough to run the demo server/client
// without a YAML file present.
func Default() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           7777,
		Transport:      TransportQUIC,
		TickInterval:   33 * time.Millisecond,
		LogLevel:       "info",
		MaxMessageSize: 1 << 16,
	}
}

// Load reads and parses a YAML config file, falling back to Default for
// any field the file omits.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LogLevelValue maps the string LogLevel field to the observability
// package's Level enum.
func (c Config) LogLevelValue() log.Level {
	switch c.LogLevel {
	case "debug":
		return log.LevelDebug
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	case "fatal":
		return log.LevelFatal
	default:
		return log.LevelInfo
	}
}
