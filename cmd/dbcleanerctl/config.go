package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kroma-labs/dbcleaner-go/httpclient"
)

// envPrefix prefixes every environment variable read by dbcleanerctl, for
// example DBCLEANER_SERVER.
const envPrefix = "DBCLEANER_"

// Output formats.
const (
	outputTable = "table"
	outputJSON  = "json"
)

var errReadBytesNotSupported = errors.New("dbcleanerctl: map provider only supports Read")

// Config is the dbcleanerctl configuration. Sources are applied in order:
// defaults, the YAML file, DBCLEANER_* variables, then explicit flags.
type Config struct {
	Server  string            `koanf:"server"`
	Timeout time.Duration     `koanf:"timeout"`
	Retries uint              `koanf:"retries"`
	Output  string            `koanf:"output"`
	Verbose bool              `koanf:"verbose"`
	Headers map[string]string `koanf:"headers"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Server:  httpclient.DefaultBaseURL,
		Timeout: 30 * time.Second,
		Retries: httpclient.DefaultMaxRetries,
		Output:  outputTable,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Server == "" {
		return errors.New("server must not be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	switch c.Output {
	case outputTable, outputJSON:
	default:
		return fmt.Errorf("output must be %q or %q, got %q", outputTable, outputJSON, c.Output)
	}
	return nil
}

// ClientOptions turns the configuration into httpclient options.
func (c Config) ClientOptions() []httpclient.Option {
	retry := httpclient.DefaultRetryConfig()
	retry.MaxRetries = c.Retries

	cfg := httpclient.DefaultConfig()
	cfg.Timeout = c.Timeout

	opts := []httpclient.Option{
		httpclient.WithBaseURL(c.Server),
		httpclient.WithConfig(cfg),
		httpclient.WithRetryConfig(retry),
		httpclient.WithServiceName("dbcleanerctl"),
	}
	for k, v := range c.Headers {
		opts = append(opts, httpclient.WithHeader(k, v))
	}
	return opts
}

// mapProvider feeds already parsed values, such as explicit flags, to koanf.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errReadBytesNotSupported
}

func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}

// LoadConfig loads the configuration from path (optional), the environment
// and overrides.
func LoadConfig(path string, overrides map[string]any) (Config, error) {
	k := koanf.New(".")

	def := DefaultConfig()
	if err := k.Load(mapProvider{
		"server":  def.Server,
		"timeout": def.Timeout.String(),
		"retries": def.Retries,
		"output":  def.Output,
	}, nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	transform := func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}
	if err := k.Load(env.Provider(envPrefix, ".", transform), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(mapProvider(overrides), nil); err != nil {
			return Config{}, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
