package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/envsense/internal/device"
	"github.com/srg/envsense/internal/display"
	"github.com/srg/envsense/internal/session"
	"gopkg.in/yaml.v3"
)

// Identifiers of the environmental sensor firmware
const (
	DefaultDeviceName         = "env_sensor"
	DefaultServiceUUID        = "19B10040-E8F2-537E-4F6C-D104768A1214"
	DefaultCharacteristicUUID = "19B10041-E8F2-537E-4F6C-D104768A1215"
)

// ElementConfig declares a display element
type ElementConfig struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
}

// Config holds application configuration
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`

	DeviceName          string   `yaml:"device_name" default:"env_sensor"`
	NameFilter          bool     `yaml:"name_filter" default:"false"` // filtered strategy also matches device_name
	Strategy            string   `yaml:"strategy" default:"filtered"` // filtered, open
	ServiceUUID         string   `yaml:"service_uuid" default:"19B10040-E8F2-537E-4F6C-D104768A1214"`
	CharacteristicUUIDs []string `yaml:"characteristic_uuids"`
	OptionalServices    []string `yaml:"optional_services"`
	IntegerKeys         []string `yaml:"integer_keys"`

	Elements      []ElementConfig `yaml:"elements"`
	StrictDisplay bool            `yaml:"strict_display" default:"false"`

	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"0s"` // 0 waits forever
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.CharacteristicUUIDs = []string{DefaultCharacteristicUUID}
	cfg.IntegerKeys = append([]string(nil), session.DefaultIntegerKeys...)
	return cfg
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
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
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that the YAML decoder cannot
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := c.SessionStrategy(); err != nil {
		return err
	}
	if _, err := device.ValidateUUID(c.ServiceUUID); err != nil {
		return fmt.Errorf("service_uuid: %w", err)
	}
	if c.strategy() == session.StrategyFiltered {
		if _, err := device.ValidateUUID(c.CharacteristicUUIDs...); err != nil {
			return fmt.Errorf("characteristic_uuids: %w", err)
		}
	}
	if len(c.OptionalServices) > 0 {
		if _, err := device.ValidateUUID(c.OptionalServices...); err != nil {
			return fmt.Errorf("optional_services: %w", err)
		}
	}
	return nil
}

// SessionStrategy parses the strategy name
func (c *Config) SessionStrategy() (session.Strategy, error) {
	switch strings.ToLower(c.Strategy) {
	case "filtered", "":
		return session.StrategyFiltered, nil
	case "open":
		return session.StrategyOpen, nil
	default:
		return 0, fmt.Errorf("unknown strategy %q (want filtered or open)", c.Strategy)
	}
}

// strategy is SessionStrategy for an already validated config
func (c *Config) strategy() session.Strategy {
	s, _ := c.SessionStrategy()
	return s
}

// NewBoard creates the display board with the configured elements
func (c *Config) NewBoard(opts ...display.Option) *display.Board {
	if c.StrictDisplay {
		opts = append(opts, display.Strict())
	}
	board := display.NewBoard(opts...)
	for _, e := range c.Elements {
		label := e.Label
		if label == "" {
			label = e.ID
		}
		board.Declare(e.ID, label)
	}
	return board
}

// SessionOptions builds session options rendering into disp, which may be nil
func (c *Config) SessionOptions(disp display.Display) session.Options {
	return session.Options{
		DeviceName:          c.DeviceName,
		NameFilter:          c.NameFilter,
		Strategy:            c.strategy(),
		ServiceUUID:         c.ServiceUUID,
		CharacteristicUUIDs: c.CharacteristicUUIDs,
		OptionalServices:    c.OptionalServices,
		IntegerKeys:         c.IntegerKeys,
		Display:             disp,
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
