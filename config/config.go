// Package config loads the configuration of the grpcbus binary.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListen         = ":7070"
	DefaultAdmin          = ":7071"
	DefaultDialTimeout    = 5 * time.Second
	DefaultMaxMessageSize = 4 << 20
)

type Config struct {
	// Listen is the TCP address the bridge accepts clients on.
	Listen string `yaml:"listen"`
	// Admin is the address of the admin HTTP surface. Empty disables it.
	Admin string `yaml:"admin"`
	// DescriptorSets are protoc --descriptor_set_out files describing the
	// services clients may open.
	DescriptorSets []string `yaml:"descriptor_sets"`

	CallTimeout    time.Duration `yaml:"call_timeout"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	MaxMessageSize int           `yaml:"max_message_size"`

	// Aliases maps endpoint names clients use to backend targets.
	Aliases map[string]string `yaml:"aliases"`

	Etcd    Etcd    `yaml:"etcd"`
	Log     Log     `yaml:"log"`
	Tracing Tracing `yaml:"tracing"`
}

// Etcd enables "etcd:///<name>" endpoints when Endpoints is set.
type Etcd struct {
	Endpoints   []string      `yaml:"endpoints"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Tracing writes call spans as JSON lines and forwards W3C trace context to
// backends.
type Tracing struct {
	Enabled bool `yaml:"enabled"`
	// Output is the file spans are appended to. Empty means stderr.
	Output string `yaml:"output"`
	// SampleRatio is the share of calls without a sampled parent that are
	// traced.
	SampleRatio float64 `yaml:"sample_ratio"`
	// Methods limits tracing to these full method names.
	Methods []string `yaml:"methods"`
	// Services limits tracing to services with one of these prefixes.
	Services []string `yaml:"services"`
	// ExcludeMethods are never traced.
	ExcludeMethods []string `yaml:"exclude_methods"`
	// MessageEvents adds one span event per relayed message.
	MessageEvents bool `yaml:"message_events"`
}

// Default returns the configuration used for absent keys.
func Default() *Config {
	return &Config{
		Listen:         DefaultListen,
		Admin:          DefaultAdmin,
		DialTimeout:    DefaultDialTimeout,
		MaxMessageSize: DefaultMaxMessageSize,
		Etcd:           Etcd{DialTimeout: DefaultDialTimeout},
		Log:            Log{Level: "info"},
		Tracing:        Tracing{SampleRatio: 1},
	}
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over the defaults and validates the result. Unknown
// keys are an error.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if c.Admin != "" {
		if _, _, err := net.SplitHostPort(c.Admin); err != nil {
			return fmt.Errorf("admin: %w", err)
		}
	}
	if c.CallTimeout < 0 {
		return errors.New("call_timeout must not be negative")
	}
	if c.DialTimeout <= 0 {
		return errors.New("dial_timeout must be positive")
	}
	if c.MaxMessageSize <= 0 {
		return errors.New("max_message_size must be positive")
	}
	for name, target := range c.Aliases {
		if name == "" || target == "" {
			return fmt.Errorf("aliases: empty alias or target in %q: %q", name, target)
		}
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return errors.New("tracing.sample_ratio must be between 0 and 1")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Logger builds the logger described by the log section.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
