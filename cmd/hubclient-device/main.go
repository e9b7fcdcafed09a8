// Command hubclient-device is a sample device built on the hub client.
//
// This command demonstrates a complete device host with:
//   - CLI argument parsing and YAML configuration
//   - A cooperative DoWork loop driven by the do_work_freq_ms option
//   - Synthetic telemetry, direct methods and desired-property handling
//   - Optional gateway discovery and device announcement over mDNS
//   - A Prometheus metrics endpoint
//   - Protocol capture to a CBOR file
//
// Usage:
//
//	hubclient-device [flags]
//
// Flags:
//
//	-config string             Configuration file path
//	-connection-string string  Device connection string (or HUBCLIENT_CONNECTION_STRING)
//	-loopback                  Run against an in-memory hub
//	-simulate                  Send synthetic telemetry (default true)
//	-interval duration         Telemetry period (default 10s)
//	-interactive               Enable the interactive console
//	-retry-policy string       Retry policy name (default "exponential_backoff_with_jitter")
//	-retry-timeout uint        Outage ceiling in seconds, 0 for none
//	-metrics-addr string       Serve /metrics on this address
//	-protocol-log string       File path for protocol event logging (CBOR format)
//	-find-gateway              Locate a protocol gateway over mDNS
//	-announce-port uint        Announce this device over mDNS on the given port
//	-interface string          Network interface for mDNS
//	-log-level string          Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Run against the in-memory hub with the console
//	hubclient-device -loopback -interactive
//
//	# Connect to a hub with a config file and metrics
//	hubclient-device -config /etc/hubclient/device.yaml -metrics-addr :9100
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hubclient/hubclient-go/cmd/hubclient-device/interactive"
	"github.com/hubclient/hubclient-go/pkg/client"
	"github.com/hubclient/hubclient-go/pkg/connection"
	"github.com/hubclient/hubclient-go/pkg/discovery"
	hublog "github.com/hubclient/hubclient-go/pkg/log"
	"github.com/hubclient/hubclient-go/pkg/metrics"
	"github.com/hubclient/hubclient-go/pkg/transport"
	"github.com/hubclient/hubclient-go/pkg/transport/loopback"
)

var config Config

func init() {
	flag.StringVar(&config.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&config.ConnectionString, "connection-string", "", "Device connection string (or "+EnvConnectionString+")")
	flag.BoolVar(&config.Loopback, "loopback", false, "Run against an in-memory hub")
	flag.BoolVar(&config.Simulate, "simulate", true, "Send synthetic telemetry")
	flag.DurationVar(&config.TelemetryInterval, "interval", 10*time.Second, "Telemetry period")
	flag.BoolVar(&config.Interactive, "interactive", false, "Enable the interactive console")
	flag.StringVar(&config.RetryPolicy, "retry-policy", "exponential_backoff_with_jitter", "Retry policy name")
	flag.UintVar(&config.RetryTimeout, "retry-timeout", 0, "Outage ceiling in seconds, 0 for none")
	flag.StringVar(&config.MetricsAddr, "metrics-addr", "", "Serve /metrics on this address")
	flag.StringVar(&config.ProtocolLog, "protocol-log", "", "File path for protocol event logging (CBOR format)")
	flag.BoolVar(&config.FindGateway, "find-gateway", false, "Locate a protocol gateway over mDNS")
	flag.UintVar(&config.AnnouncePort, "announce-port", 0, "Announce this device over mDNS on the given port")
	flag.StringVar(&config.Interface, "interface", "", "Network interface for mDNS")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func main() {
	flag.Parse()

	if config.ConfigFile != "" {
		fc, err := loadConfigFile(config.ConfigFile)
		if err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
		applyFile(&config, fc, explicitFlags(flag.CommandLine))
	}
	if err := resolveConnectionString(&config, os.Getenv); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := validateConfig(&config); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	setupLogging(config.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cancel); err != nil {
		log.Fatalf("%v", err)
	}
	log.Println("Goodbye!")
}

func run(ctx context.Context, cancel context.CancelFunc) error {
	cs, err := client.ParseConnectionString(config.ConnectionString)
	if err != nil {
		return fmt.Errorf("invalid connection string: %w", err)
	}

	log.Println("Hub Device")
	log.Println("==========")
	log.Printf("Hub:       %s", cs.HostName)
	log.Printf("Device ID: %s", cs.DeviceID)

	if config.FindGateway && !config.Loopback {
		findGateway(ctx, cs)
	}

	opts, err := buildOptions(&config)
	if err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	policy, _ := connection.ParsePolicyKind(config.RetryPolicy)

	cfg := client.DefaultConfig()
	cfg.DeviceID = cs.DeviceID
	cfg.HubHost = cs.HostName
	cfg.Options = opts
	cfg.RetryPolicy = connection.RetryPolicy{Kind: policy, TimeoutLimit: config.RetryTimeout}
	if config.LogLevel == "debug" {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	if config.ProtocolLog != "" {
		fl, err := hublog.NewFileLogger(config.ProtocolLog)
		if err != nil {
			return err
		}
		defer func() {
			if err := fl.Close(); err != nil {
				log.Printf("Error closing protocol log: %v", err)
			}
			written, dropped := fl.Stats()
			log.Printf("Protocol log: %d events written, %d dropped", written, dropped)
		}()
		cfg.ProtocolLogger = fl
		if cfg.Logger != nil {
			cfg.ProtocolLogger = hublog.NewMultiLogger(fl, hublog.NewSlogAdapter(cfg.Logger))
		}
		log.Printf("Protocol log: %s", config.ProtocolLog)
	}

	if config.MetricsAddr != "" {
		reg := metrics.NewRegistry()
		m, err := metrics.New(reg, cs.DeviceID)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		cfg.Metrics = m

		srv := metrics.NewServer(config.MetricsAddr, reg, cfg.Logger)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if err := srv.Stop(stopCtx); err != nil {
				log.Printf("Error stopping metrics server: %v", err)
			}
		}()
		log.Printf("Metrics:   http://%s/metrics", srv.Addr())
	}

	var hub *loopback.Transport
	var tr transport.Transport
	if config.Loopback {
		hub = loopback.New()
		hub.SetTwinDocument([]byte(fmt.Sprintf(`{"desired":{"telemetryInterval":%d,"$version":1}}`,
			int(config.TelemetryInterval.Seconds()))), 1)
		tr = hub
		log.Println("Transport: loopback")
	} else {
		if tr, err = client.MQTTTransport(cs); err != nil {
			return fmt.Errorf("failed to create transport: %w", err)
		}
		log.Println("Transport: MQTT")
	}

	c, err := client.New(cfg, tr)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer c.Destroy()

	sim := NewSimulator(c, hub, config.TelemetryInterval)
	h := &handlers{client: c, sim: sim, now: time.Now}
	if err := h.register(); err != nil {
		return err
	}
	if config.Simulate {
		sim.Start()
	}

	if config.AnnouncePort > 0 {
		ann := discovery.NewAnnouncer(config.Interface)
		err := ann.Announce(&discovery.DeviceInfo{
			HubHost:  cs.HostName,
			DeviceID: cs.DeviceID,
			ModuleID: cs.ModuleID,
			Port:     uint16(config.AnnouncePort),
		})
		if err != nil {
			log.Printf("Warning: Failed to announce device: %v", err)
		} else {
			defer ann.Stop()
			log.Printf("Announced as %s", discovery.InstanceNameFor(cs.DeviceID, cs.ModuleID))
		}
	}

	cmds := make(chan func(), 16)
	if config.Interactive {
		console, err := interactive.New(c, sim, func(fn func()) {
			select {
			case cmds <- fn:
			case <-ctx.Done():
			}
		})
		if err != nil {
			return err
		}
		log.SetOutput(console.Stdout())
		go console.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("Received signal: %v", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	loop(ctx, c, sim, cmds)
	log.Println("Shutting down...")
	return nil
}

// loop owns the client: console commands, telemetry and DoWork all run here.
func loop(ctx context.Context, c *client.Client, sim *Simulator, cmds <-chan func()) {
	period := c.Options().DoWorkFrequency
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-cmds:
			fn()
		case now := <-ticker.C:
			sim.Tick(now)
			c.DoWork()
			if p := c.Options().DoWorkFrequency; p != period {
				period = p
				ticker.Reset(period)
			}
		}
	}
}

// findGateway routes the connection through a gateway found over mDNS.
func findGateway(ctx context.Context, cs *client.ConnectionString) {
	cfg := discovery.DefaultBrowserConfig()
	cfg.Interface = config.Interface
	browser := discovery.NewMDNSBrowser(cfg)

	log.Printf("Looking for a gateway to %s...", cs.HostName)
	gw, err := browser.FindGateway(ctx, cs.HostName)
	if err != nil {
		log.Printf("Warning: No gateway found: %v", err)
		return
	}
	cs.GatewayHostName = gw.Address()
	log.Printf("Gateway:   %s (%s:%d, %s)", gw.InstanceName, gw.Address(), gw.Port, gw.Protocol)
}

func setupLogging(level string) {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	switch level {
	case "debug":
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
	case "warn", "error":
		log.SetFlags(log.Ltime)
	}
}
