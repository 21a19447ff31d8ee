// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the YAML configuration of the commctl runner.
//
// Values are layered: defaults, then the YAML file, then COMMPUMP_*
// environment variables for the log and metrics settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/someonegg/commpump"
	"github.com/someonegg/commpump/framing"
	"github.com/someonegg/commpump/queue"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "COMMPUMP"

type Config struct {
	Log       LogConfig        `yaml:"log"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

type LogConfig struct {
	// debug, info, warn or error
	Level string `yaml:"level"`
	// json or console
	Format      string   `yaml:"format"`
	OutputPaths []string `yaml:"output_paths"`
}

type MetricsConfig struct {
	// Addr serves /metrics when not empty, e.g. ":9100".
	Addr      string `yaml:"addr"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// EndpointConfig describes one Communicator.
type EndpointConfig struct {
	ID         string        `yaml:"id"`
	Address    string        `yaml:"address"`
	Persistent bool          `yaml:"persistent"`
	Inactivity time.Duration `yaml:"inactivity"`
	SendGap    time.Duration `yaml:"send_gap"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RetryInterval  time.Duration `yaml:"retry_interval"`
	SendTimeout    time.Duration `yaml:"send_timeout"`

	Queue   QueueConfig   `yaml:"queue"`
	Framing FramingConfig `yaml:"framing"`
}

type QueueConfig struct {
	// ring or blocking
	Kind string `yaml:"kind"`
	// Capacity of a ring in bytes.
	Capacity int `yaml:"capacity"`
}

type FramingConfig struct {
	// none or length
	Codec     string `yaml:"codec"`
	MaxLength int    `yaml:"max_length"`
	// AsyncDelivery hands decoded messages to a separate goroutine.
	AsyncDelivery bool `yaml:"async_delivery"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stderr"},
		},
		Metrics: MetricsConfig{
			Path:      "/metrics",
			Namespace: "commpump",
		},
	}
}

func (e *EndpointConfig) applyDefaults() {
	if e.Queue.Kind == "" {
		e.Queue.Kind = "ring"
	}
	if e.Queue.Kind == "ring" && e.Queue.Capacity == 0 {
		e.Queue.Capacity = commpump.DefaultQueueCapacity
	}
	if e.Framing.Codec == "" {
		e.Framing.Codec = "none"
	}
}

// Load reads path, an empty path only applies defaults and environment.
// The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.loadFromEnv()
	for i := range cfg.Endpoints {
		cfg.Endpoints[i].applyDefaults()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML data over cfg, unknown keys are errors.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) loadFromEnv() {
	set := func(key string, dst *string) {
		if v := os.Getenv(EnvPrefix + "_" + key); v != "" {
			*dst = v
		}
	}
	set("LOG_LEVEL", &c.Log.Level)
	set("LOG_FORMAT", &c.Log.Format)
	set("METRICS_ADDR", &c.Metrics.Addr)
	set("METRICS_NAMESPACE", &c.Metrics.Namespace)
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	ids := make(map[string]bool)
	for i, e := range c.Endpoints {
		name := fmt.Sprintf("endpoints[%d]", i)
		if e.ID != "" {
			if ids[e.ID] {
				errs = append(errs, fmt.Errorf("%s: duplicate id %q", name, e.ID))
			}
			ids[e.ID] = true
		}
		if _, err := commpump.ParseAddress(e.Address); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		if e.Inactivity < 0 || e.SendGap < 0 {
			errs = append(errs, fmt.Errorf("%s: negative duration", name))
		}
		switch e.Queue.Kind {
		case "ring":
			if e.Queue.Capacity <= 0 {
				errs = append(errs, fmt.Errorf("%s: queue.capacity must be positive", name))
			}
		case "blocking":
		default:
			errs = append(errs, fmt.Errorf("%s: unknown queue kind %q", name, e.Queue.Kind))
		}
		switch e.Framing.Codec {
		case "none", "length":
		default:
			errs = append(errs, fmt.Errorf("%s: unknown framing codec %q", name, e.Framing.Codec))
		}
	}

	return errors.Join(errs...)
}

// Build creates the logger described by c.
func (c LogConfig) Build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}

	var encoderConfig zapcore.EncoderConfig
	if c.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := c.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      c.Format == "console",
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}
	if c.Format == "console" {
		zapConfig.Encoding = "console"
	}

	return zapConfig.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// NewQueue returns a new outbound queue of the configured kind.
func (e EndpointConfig) NewQueue() queue.Queue {
	if e.Queue.Kind == "blocking" {
		return queue.NewBlockingQueue()
	}
	capacity := e.Queue.Capacity
	if capacity <= 0 {
		capacity = commpump.DefaultQueueCapacity
	}
	return queue.NewRingBuffer(capacity)
}

// Options returns the Communicator options of e. q is the outbound queue,
// a new one from NewQueue when nil.
func (e EndpointConfig) Options(q queue.Queue) []commpump.Option {
	if q == nil {
		q = e.NewQueue()
	}
	opts := []commpump.Option{commpump.WithQueue(q)}
	if e.ConnectTimeout > 0 {
		opts = append(opts, commpump.WithConnectTimeout(e.ConnectTimeout))
	}
	if e.RetryInterval > 0 {
		opts = append(opts, commpump.WithRetryInterval(e.RetryInterval))
	}
	if e.SendTimeout > 0 {
		opts = append(opts, commpump.WithSendTimeout(e.SendTimeout))
	}
	return opts
}

// NewFrameWrapper returns the FrameWrapper of e delivering to h, nil when
// the endpoint is unframed.
func (e EndpointConfig) NewFrameWrapper(h framing.Handler[[]byte], logger *zap.Logger) *framing.Wrapper[[]byte] {
	if e.Framing.Codec != "length" {
		return nil
	}
	opts := []framing.Option{framing.WithLogger(logger)}
	if e.Framing.AsyncDelivery {
		opts = append(opts, framing.WithAsyncDelivery())
	}
	return framing.New[[]byte](framing.LengthPrefixed{MaxLength: e.Framing.MaxLength}, h, opts...)
}
