package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds application configuration
type Config struct {
	LogLevel              string           `yaml:"log_level" default:"info"`
	OperationTimeout      time.Duration    `yaml:"operation_timeout" default:"500ms"`
	QueueSize             uint32           `yaml:"queue_size" default:"64"`
	ConfirmStop           bool             `yaml:"confirm_stop" default:"false"`
	DisableOnPartialStart bool             `yaml:"disable_on_partial_start" default:"false"`
	OrphanAckWindow       time.Duration    `yaml:"orphan_ack_window"`
	OutputFormat          string           `yaml:"output_format" default:"table"`
	Controller            ControllerConfig `yaml:"controller"`
}

// ControllerConfig describes the simulated controller.
type ControllerConfig struct {
	MaxInstances int           `yaml:"max_instances" default:"5"`
	AckLatency   time.Duration `yaml:"ack_latency" default:"2ms"`
	DeviceName   string        `yaml:"device_name" default:"bleadv"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. An empty path yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var problems []string

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, fmt.Sprintf("log_level %q is not a log level", c.LogLevel))
	}
	if c.OperationTimeout <= 0 {
		problems = append(problems, "operation_timeout must be positive")
	}
	if c.QueueSize == 0 {
		problems = append(problems, "queue_size must be positive")
	}
	if c.OrphanAckWindow < 0 {
		problems = append(problems, "orphan_ack_window must not be negative")
	}
	switch c.OutputFormat {
	case "table", "json":
	default:
		problems = append(problems, fmt.Sprintf("output_format %q must be table or json", c.OutputFormat))
	}
	if c.Controller.MaxInstances < 1 {
		problems = append(problems, "controller.max_instances must be at least 1")
	}
	if c.Controller.AckLatency < 0 {
		problems = append(problems, "controller.ack_latency must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
