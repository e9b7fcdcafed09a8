package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hubclient/hubclient-go/pkg/connection"
	"github.com/hubclient/hubclient-go/pkg/options"
)

// EnvConnectionString names the environment variable consulted when no
// connection string is given on the command line or in the config file.
const EnvConnectionString = "HUBCLIENT_CONNECTION_STRING"

// loopbackConnectionString identifies the simulated device in loopback mode.
const loopbackConnectionString = "HostName=loopback.local;DeviceId=sim-device;SharedAccessKey=bG9vcGJhY2s="

// Config holds the host configuration.
type Config struct {
	ConfigFile        string
	ConnectionString  string
	Loopback          bool
	Simulate          bool
	Interactive       bool
	TelemetryInterval time.Duration
	MetricsAddr       string
	ProtocolLog       string
	LogLevel          string

	RetryPolicy  string
	RetryTimeout uint

	FindGateway  bool
	AnnouncePort uint
	Interface    string

	// Options are client options by name, applied on top of the defaults.
	Options map[string]any
}

// fileConfig is the YAML layout of the configuration file.
type fileConfig struct {
	ConnectionString  string         `yaml:"connection_string"`
	Loopback          bool           `yaml:"loopback"`
	Simulate          *bool          `yaml:"simulate"`
	TelemetryInterval time.Duration  `yaml:"telemetry_interval"`
	MetricsAddr       string         `yaml:"metrics_addr"`
	ProtocolLog       string         `yaml:"protocol_log"`
	LogLevel          string         `yaml:"log_level"`
	Retry             retryConfig    `yaml:"retry"`
	Discovery         discoveryFile  `yaml:"discovery"`
	Options           map[string]any `yaml:"options"`
}

type retryConfig struct {
	Policy       string `yaml:"policy"`
	TimeoutLimit uint   `yaml:"timeout_limit"`
}

type discoveryFile struct {
	FindGateway  bool   `yaml:"find_gateway"`
	AnnouncePort uint   `yaml:"announce_port"`
	Interface    string `yaml:"interface"`
}

// loadConfigFile reads a YAML configuration file.
func loadConfigFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is an operator flag
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &fc, nil
}

// applyFile copies file settings into cfg for every flag not set explicitly.
func applyFile(cfg *Config, fc *fileConfig, explicit map[string]bool) {
	if !explicit["connection-string"] && fc.ConnectionString != "" {
		cfg.ConnectionString = fc.ConnectionString
	}
	if !explicit["loopback"] && fc.Loopback {
		cfg.Loopback = true
	}
	if !explicit["simulate"] && fc.Simulate != nil {
		cfg.Simulate = *fc.Simulate
	}
	if !explicit["interval"] && fc.TelemetryInterval > 0 {
		cfg.TelemetryInterval = fc.TelemetryInterval
	}
	if !explicit["metrics-addr"] && fc.MetricsAddr != "" {
		cfg.MetricsAddr = fc.MetricsAddr
	}
	if !explicit["protocol-log"] && fc.ProtocolLog != "" {
		cfg.ProtocolLog = fc.ProtocolLog
	}
	if !explicit["log-level"] && fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if !explicit["retry-policy"] && fc.Retry.Policy != "" {
		cfg.RetryPolicy = fc.Retry.Policy
	}
	if !explicit["retry-timeout"] && fc.Retry.TimeoutLimit > 0 {
		cfg.RetryTimeout = fc.Retry.TimeoutLimit
	}
	if !explicit["find-gateway"] && fc.Discovery.FindGateway {
		cfg.FindGateway = true
	}
	if !explicit["announce-port"] && fc.Discovery.AnnouncePort > 0 {
		cfg.AnnouncePort = fc.Discovery.AnnouncePort
	}
	if !explicit["interface"] && fc.Discovery.Interface != "" {
		cfg.Interface = fc.Discovery.Interface
	}
	cfg.Options = fc.Options
}

// explicitFlags returns the names of flags set on the command line.
func explicitFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// resolveConnectionString falls back to the environment, then to the
// loopback identity.
func resolveConnectionString(cfg *Config, getenv func(string) string) error {
	if cfg.ConnectionString == "" {
		cfg.ConnectionString = getenv(EnvConnectionString)
	}
	if cfg.ConnectionString != "" {
		return nil
	}
	if cfg.Loopback {
		cfg.ConnectionString = loopbackConnectionString
		return nil
	}
	return fmt.Errorf("no connection string: use -connection-string, the config file or %s", EnvConnectionString)
}

// validateConfig checks values the client would otherwise reject later.
func validateConfig(cfg *Config) error {
	if _, err := connection.ParsePolicyKind(cfg.RetryPolicy); err != nil {
		return err
	}
	if cfg.TelemetryInterval <= 0 {
		return fmt.Errorf("telemetry interval must be positive, got %v", cfg.TelemetryInterval)
	}
	if cfg.AnnouncePort > 65535 {
		return fmt.Errorf("announce port must be 0-65535, got %d", cfg.AnnouncePort)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %s", cfg.LogLevel)
	}
	return nil
}

// buildOptions applies cfg.Options to the defaults in name order.
func buildOptions(cfg *Config) (options.Options, error) {
	opts := options.Default()
	names := make([]string, 0, len(cfg.Options))
	for name := range cfg.Options {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := opts.Set(name, cfg.Options[name]); err != nil {
			return opts, fmt.Errorf("option %s: %w", name, err)
		}
	}
	if cfg.ProtocolLog != "" {
		opts.LogTrace = true
	}
	return opts, nil
}
