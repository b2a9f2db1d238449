// Copyright 2026 The persona-relay Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the relay configuration from an optional YAML file
// and PERSONA_RELAY_* environment variables
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix  = "PERSONA_RELAY"
	configName = "persona-relay"

	ContentGateway = "gateway"
	ContentLocal   = "local"
	ContentMemory  = "memory"

	redacted = "<redacted>"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Chain     ChainConfig     `mapstructure:"chain" yaml:"chain"`
	Stream    StreamConfig    `mapstructure:"stream" yaml:"stream"`
	Router    RouterConfig    `mapstructure:"router" yaml:"router"`
	Directory DirectoryConfig `mapstructure:"directory" yaml:"directory"`
	Content   ContentConfig   `mapstructure:"content" yaml:"content"`
	Inference InferenceConfig `mapstructure:"inference" yaml:"inference"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline" yaml:"pipeline"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type ChainConfig struct {
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	SigningKey string        `mapstructure:"signing_key" yaml:"signing_key"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Expiration time.Duration `mapstructure:"expiration" yaml:"expiration"`
}

type StreamConfig struct {
	URL                 string        `mapstructure:"url" yaml:"url"`
	StartBlock          int64         `mapstructure:"start_block" yaml:"start_block"`
	EndBlock            uint32        `mapstructure:"end_block" yaml:"end_block"`
	MaxMessagesInFlight uint32        `mapstructure:"max_messages_in_flight" yaml:"max_messages_in_flight"`
	IrreversibleOnly    bool          `mapstructure:"irreversible_only" yaml:"irreversible_only"`
	FetchBlock          bool          `mapstructure:"fetch_block" yaml:"fetch_block"`
	FetchTraces         bool          `mapstructure:"fetch_traces" yaml:"fetch_traces"`
	FetchDeltas         bool          `mapstructure:"fetch_deltas" yaml:"fetch_deltas"`
	Acks                bool          `mapstructure:"acks" yaml:"acks"`
	Resume              bool          `mapstructure:"resume" yaml:"resume"`
	CheckpointFile      string        `mapstructure:"checkpoint_file" yaml:"checkpoint_file"`
	ReconnectDelay      time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	MaxRetries          int           `mapstructure:"max_retries" yaml:"max_retries"`
	IdleTimeout         time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

type RouterConfig struct {
	Actions             []string `mapstructure:"actions" yaml:"actions"`
	RegistrationActions []string `mapstructure:"registration_actions" yaml:"registration_actions"`
}

type DirectoryConfig struct {
	Contract     string        `mapstructure:"contract" yaml:"contract"`
	Scope        string        `mapstructure:"scope" yaml:"scope"`
	Table        string        `mapstructure:"table" yaml:"table"`
	Limit        int           `mapstructure:"limit" yaml:"limit"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

type ContentConfig struct {
	Backend    string        `mapstructure:"backend" yaml:"backend"`
	PinURL     string        `mapstructure:"pin_url" yaml:"pin_url"`
	GatewayURL string        `mapstructure:"gateway_url" yaml:"gateway_url"`
	JWT        string        `mapstructure:"jwt" yaml:"jwt"`
	Dir        string        `mapstructure:"dir" yaml:"dir"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type InferenceConfig struct {
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Attempts   int           `mapstructure:"attempts" yaml:"attempts"`
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

type PipelineConfig struct {
	// Workers is the number of pipeline workers. Zero runs pipelines inline
	// with block processing
	Workers     int    `mapstructure:"workers" yaml:"workers"`
	QueueSize   int    `mapstructure:"queue_size" yaml:"queue_size"`
	LookupLimit int    `mapstructure:"lookup_limit" yaml:"lookup_limit"`
	Permission  string `mapstructure:"permission" yaml:"permission"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

var defaults = map[string]any{
	"logging.level":  "info",
	"logging.format": "text",

	"chain.endpoint":    "http://localhost:8888",
	"chain.signing_key": "",
	"chain.timeout":     30 * time.Second,
	"chain.expiration":  120 * time.Second,

	"stream.url":                    "ws://localhost:8080",
	"stream.start_block":            -1,
	"stream.end_block":              uint32(0xffffffff),
	"stream.max_messages_in_flight": 1000,
	"stream.irreversible_only":      false,
	"stream.fetch_block":            true,
	"stream.fetch_traces":           false,
	"stream.fetch_deltas":           false,
	"stream.acks":                   true,
	"stream.resume":                 false,
	"stream.checkpoint_file":        "",
	"stream.reconnect_delay":        5 * time.Second,
	"stream.max_retries":            5,
	"stream.idle_timeout":           90 * time.Second,

	"router.actions":              []string{"initpersona", "submitmsg", "finalizemsg"},
	"router.registration_actions": []string{"initpersona"},

	"directory.contract":      "allpersonas",
	"directory.scope":         "",
	"directory.table":         "personas",
	"directory.limit":         1000,
	"directory.poll_interval": 60 * time.Second,

	"content.backend":     ContentGateway,
	"content.pin_url":     "https://api.pinata.cloud/pinning/pinFileToIPFS",
	"content.gateway_url": "https://gateway.pinata.cloud",
	"content.jwt":         "",
	"content.dir":         "",
	"content.timeout":     30 * time.Second,

	"inference.endpoint":    "",
	"inference.api_key":     "",
	"inference.timeout":     120 * time.Second,
	"inference.attempts":    3,
	"inference.retry_delay": time.Second,

	"pipeline.workers":      0,
	"pipeline.queue_size":   64,
	"pipeline.lookup_limit": 100,
	"pipeline.permission":   "active",

	"metrics.addr": "",
}

// Environment names used by earlier deployments, checked after the
// PERSONA_RELAY_* name
var legacyEnv = map[string]string{
	"chain.signing_key":   "WIRE_PRIVATE_KEY",
	"content.jwt":         "PINATA_JWT",
	"content.gateway_url": "PINATA_GATEWAY",
	"inference.api_key":   "VENICE_API_KEY",
	"inference.endpoint":  "VENICE_API_ENDPOINT",
}

// Default returns the configuration with no file or environment applied
func Default() *Config {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	var cfg Config
	// defaults always decode
	_ = v.Unmarshal(&cfg)
	cfg.Directory.Scope = cfg.Directory.Contract
	return &cfg
}

// Load reads the configuration. An empty path looks for persona-relay.yaml
// in the working directory and ignores it when missing
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envName := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envName, legacy); err != nil {
			return nil, err
		}
	}
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Directory.Scope == "" {
		cfg.Directory.Scope = cfg.Directory.Contract
	}
	return &cfg, nil
}

// Validate checks the settings the relay can not run without
func (c *Config) Validate() error {
	var errs []error
	if err := checkURL(c.Chain.Endpoint, "http", "https"); err != nil {
		errs = append(errs, fmt.Errorf("chain.endpoint: %w", err))
	}
	if err := checkURL(c.Stream.URL, "ws", "wss"); err != nil {
		errs = append(errs, fmt.Errorf("stream.url: %w", err))
	}
	if c.Stream.StartBlock < -1 || c.Stream.StartBlock > 0xffffffff {
		errs = append(errs, fmt.Errorf("stream.start_block: %d out of range", c.Stream.StartBlock))
	}
	if c.Stream.MaxRetries <= 0 {
		errs = append(errs, errors.New("stream.max_retries: must be positive"))
	}
	if len(c.Router.Actions) == 0 {
		errs = append(errs, errors.New("router.actions: at least one action is required"))
	}
	if c.Directory.Contract == "" || c.Directory.Table == "" {
		errs = append(errs, errors.New("directory: contract and table are required"))
	}
	switch c.Content.Backend {
	case ContentGateway:
		if err := checkURL(c.Content.GatewayURL, "http", "https"); err != nil {
			errs = append(errs, fmt.Errorf("content.gateway_url: %w", err))
		}
	case ContentLocal:
		if c.Content.Dir == "" {
			errs = append(errs, errors.New("content.dir: required for the local backend"))
		}
	case ContentMemory:
	default:
		errs = append(errs, fmt.Errorf("content.backend: unknown backend %q", c.Content.Backend))
	}
	if c.Inference.Endpoint != "" {
		if err := checkURL(c.Inference.Endpoint, "http", "https"); err != nil {
			errs = append(errs, fmt.Errorf("inference.endpoint: %w", err))
		}
	}
	if c.Inference.Attempts <= 0 {
		errs = append(errs, errors.New("inference.attempts: must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func checkURL(raw string, schemes ...string) error {
	if raw == "" {
		return errors.New("required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, scheme := range schemes {
		if u.Scheme == scheme && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%q is not a %s URL", raw, strings.Join(schemes, " or "))
}

// Redacted returns a copy with secrets masked
func (c *Config) Redacted() *Config {
	ret := *c
	ret.Router.Actions = append([]string(nil), c.Router.Actions...)
	ret.Router.RegistrationActions = append([]string(nil), c.Router.RegistrationActions...)
	for _, secret := range []*string{&ret.Chain.SigningKey, &ret.Content.JWT, &ret.Inference.APIKey} {
		if *secret != "" {
			*secret = redacted
		}
	}
	return &ret
}

// WriteYAML writes the configuration as YAML
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

// NewLogger builds the process logger described by the logging settings
func (c LoggingConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(c.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("logging.format: unknown format %q", c.Format)
}
