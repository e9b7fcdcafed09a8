package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubclient/hubclient-go/pkg/connection"
	"github.com/hubclient/hubclient-go/pkg/options"
)

const testConfigYAML = `
connection_string: "HostName=hub.example.net;DeviceId=dev1;SharedAccessKey=a2V5"
simulate: false
telemetry_interval: 30s
metrics_addr: ":9100"
log_level: debug
retry:
  policy: interval
  timeout_limit: 120
discovery:
  find_gateway: true
  announce_port: 8883
options:
  messageTimeout: 5000
  logtrace: true
  keepalive: 60
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "device.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func defaultTestConfig() Config {
	return Config{
		Simulate:          true,
		TelemetryInterval: 10 * time.Second,
		RetryPolicy:       "exponential_backoff_with_jitter",
		LogLevel:          "info",
	}
}

func TestLoadConfigFile(t *testing.T) {
	fc, err := loadConfigFile(writeConfig(t, testConfigYAML))
	require.NoError(t, err)

	cfg := defaultTestConfig()
	applyFile(&cfg, fc, map[string]bool{})

	assert.Equal(t, "HostName=hub.example.net;DeviceId=dev1;SharedAccessKey=a2V5", cfg.ConnectionString)
	assert.False(t, cfg.Simulate)
	assert.Equal(t, 30*time.Second, cfg.TelemetryInterval)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "interval", cfg.RetryPolicy)
	assert.Equal(t, uint(120), cfg.RetryTimeout)
	assert.True(t, cfg.FindGateway)
	assert.Equal(t, uint(8883), cfg.AnnouncePort)
	require.NoError(t, validateConfig(&cfg))

	opts, err := buildOptions(&cfg)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, opts.MessageTimeout)
	assert.Equal(t, time.Minute, opts.KeepAlive)
	assert.True(t, opts.LogTrace)
}

func TestExplicitFlagsWin(t *testing.T) {
	fc, err := loadConfigFile(writeConfig(t, testConfigYAML))
	require.NoError(t, err)

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := defaultTestConfig()
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "")
	fs.DurationVar(&cfg.TelemetryInterval, "interval", 10*time.Second, "")
	require.NoError(t, fs.Parse([]string{"-log-level", "warn", "-interval", "1s"}))

	applyFile(&cfg, fc, explicitFlags(fs))
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, time.Second, cfg.TelemetryInterval)
	assert.Equal(t, "interval", cfg.RetryPolicy, "unset flags take the file value")
}

func TestLoadConfigFileErrors(t *testing.T) {
	_, err := loadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = loadConfigFile(writeConfig(t, "retry: [not, a, mapping]"))
	assert.Error(t, err)
}

func TestResolveConnectionString(t *testing.T) {
	env := func(v string) func(string) string {
		return func(name string) string {
			if name == EnvConnectionString {
				return v
			}
			return ""
		}
	}

	cfg := Config{}
	require.NoError(t, resolveConnectionString(&cfg, env("HostName=h;DeviceId=d;SharedAccessKey=k")))
	assert.Equal(t, "HostName=h;DeviceId=d;SharedAccessKey=k", cfg.ConnectionString)

	cfg = Config{ConnectionString: "HostName=flag;DeviceId=d;SharedAccessKey=k"}
	require.NoError(t, resolveConnectionString(&cfg, env("HostName=env;DeviceId=d;SharedAccessKey=k")))
	assert.Equal(t, "HostName=flag;DeviceId=d;SharedAccessKey=k", cfg.ConnectionString)

	cfg = Config{Loopback: true}
	require.NoError(t, resolveConnectionString(&cfg, env("")))
	assert.Equal(t, loopbackConnectionString, cfg.ConnectionString)

	cfg = Config{}
	assert.Error(t, resolveConnectionString(&cfg, env("")))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad policy", mutate: func(c *Config) { c.RetryPolicy = "eventually" }, wantErr: connection.ErrInvalidPolicy},
		{name: "zero interval", mutate: func(c *Config) { c.TelemetryInterval = 0 }},
		{name: "port too large", mutate: func(c *Config) { c.AnnouncePort = 70000 }},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultTestConfig()
			tt.mutate(&cfg)
			err := validateConfig(&cfg)
			if tt.name == "defaults" {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "error %v does not wrap %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildOptionsRejectsUnknown(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.Options = map[string]any{"volume": 11}
	_, err := buildOptions(&cfg)
	assert.ErrorIs(t, err, options.ErrUnknownOption)
}

func TestBuildOptionsProtocolLogEnablesTrace(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.ProtocolLog = "capture.hlog"
	opts, err := buildOptions(&cfg)
	require.NoError(t, err)
	assert.True(t, opts.LogTrace)
}
