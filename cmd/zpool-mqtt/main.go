// zpool-mqtt bridges ZFS pool health and capacity metrics to an MQTT
// broker with Home Assistant auto-discovery.
//
// It polls `zpool list -Hp` at a fixed interval, publishes one retained
// discovery config per pool metric so the hub auto-creates sensor
// entities grouped under one device per pool, and pushes retained state
// values every cycle. Configuration is loaded from a single YAML file
// discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	zpool-mqtt [serve]       Run the bridge (default command)
//	zpool-mqtt once          Poll and print pools without publishing
//	zpool-mqtt version       Print version and build information
//	zpool-mqtt -o json once  Output pool data as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nugget/zpool-mqtt/internal/buildinfo"
	"github.com/nugget/zpool-mqtt/internal/config"
	"github.com/nugget/zpool-mqtt/internal/connwatch"
	"github.com/nugget/zpool-mqtt/internal/mqtt"
	"github.com/nugget/zpool-mqtt/internal/poller"
	"github.com/nugget/zpool-mqtt/internal/registry"
	"github.com/nugget/zpool-mqtt/internal/zpool"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the zpool-mqtt command. All OS-level
// dependencies are injected as parameters:
//
//   - ctx controls the lifetime of the process. Cancelling it triggers
//     graceful shutdown of the poll loop and broker connection.
//   - stdout and stderr receive all program output. Structured logs go
//     to stdout; fatal error messages go to stderr.
//   - args is os.Args[1:], the command-line arguments after the program
//     name. We parse these manually rather than using the flag package
//     to avoid global state that interferes with parallel tests.
//
// run returns nil on clean shutdown and a non-nil error for any failure.
// The caller (main) is responsible for printing the error and exiting.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		case !strings.HasPrefix(args[i], "-"):
			cmdArgs = append(cmdArgs, args[i])
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	// Default to human-readable text output.
	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	// Running with no command starts the bridge, so the binary works
	// directly as a container entrypoint.
	case "serve", "":
		return runServe(ctx, stdout, stderr, configPath)
	case "once":
		return runOnce(ctx, stdout, configPath, outputFmt)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "help":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runServe is the primary operating mode: it loads config, verifies the
// zpool binary, connects to the broker, and runs the poll loop until a
// shutdown signal arrives.
//
// The shutdown sequence is:
//  1. SIGINT or SIGTERM cancels the poll loop's context
//  2. The poll loop finishes its in-flight cycle and returns
//  3. A retained "offline" availability message is published with a
//     bounded grace period, then the broker connection closes
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting zpool-mqtt",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level and format are
	// known. The initial Info-level text logger covers only the startup
	// banner and config errors.
	{
		level := slog.LevelInfo
		if cfg.LogLevel != "" {
			// Already validated by config.Validate(), so this error
			// path should be unreachable in practice.
			level, _ = config.ParseLogLevel(cfg.LogLevel)
		}
		logger = newLogger(stdout, level, cfg.LogFormat)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"broker", cfg.MQTT.BrokerURL(),
		"interval_sec", cfg.Zpool.IntervalSec,
		"command", cfg.Zpool.Command)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	interval := time.Duration(cfg.Zpool.IntervalSec) * time.Second
	timeout := time.Duration(cfg.Zpool.TimeoutSec) * time.Second

	source := zpool.NewCommandSource(cfg.Zpool.Command, timeout)
	if err := source.CheckBinary(); err != nil {
		return err
	}

	instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("load mqtt instance id: %w", err)
	}
	logger.Info("mqtt instance ID loaded", "instance_id", instanceID)

	session := registry.NewSession()
	pub := mqtt.New(cfg.MQTT, instanceID, session, interval, logger)

	// The broker connection outlives the signal context so the graceful
	// offline publish can still go out after a shutdown signal.
	connCtx, connCancel := context.WithCancel(context.Background())
	defer connCancel()
	if err := pub.Start(connCtx); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Startup is fatal if the broker never answers within the retry
	// budget; after that, outages only surface as log transitions while
	// the client library reconnects on its own.
	watcher := connwatch.New(connwatch.Config{
		Name:       "mqtt",
		Probe:      pub.AwaitConnection,
		MaxRetries: cfg.MQTT.ConnectRetries,
		Logger:     logger,
	})
	if err := watcher.AwaitStartup(ctx); err != nil {
		return fmt.Errorf("broker connection: %w", err)
	}
	go watcher.Run(ctx)

	loop := poller.New(poller.Config{
		Source:    source,
		Publisher: pub,
		Interval:  interval,
		Logger:    logger,
	})

	done := make(chan struct{})
	go func() {
		loop.Start(ctx)
		close(done)
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")
	<-done

	offlineCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pub.Stop(offlineCtx); err != nil {
		logger.Error("mqtt shutdown failed", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// runOnce handles the "zpool-mqtt once" subcommand: a single poll and
// parse with the result printed to stdout, no broker involved. Useful
// for verifying zpool output parsing on a new system.
func runOnce(ctx context.Context, stdout io.Writer, configPath string, outputFmt string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	source := zpool.NewCommandSource(cfg.Zpool.Command, time.Duration(cfg.Zpool.TimeoutSec)*time.Second)
	if err := source.CheckBinary(); err != nil {
		return err
	}

	raw, err := source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch pool status: %w", err)
	}

	pools, err := zpool.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse pool status: %w", err)
	}

	if outputFmt == "json" {
		out := make([]map[string]string, 0, len(pools))
		for _, p := range pools {
			m := map[string]string{"name": p.Name}
			for _, f := range p.Fields {
				m[f.Key] = f.Value
			}
			out = append(out, m)
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(pools) == 0 {
		fmt.Fprintln(stdout, "no pools")
		return nil
	}
	for _, p := range pools {
		fmt.Fprintln(stdout, p.Name)
		for _, f := range p.Fields {
			fmt.Fprintf(stdout, "  %-12s %s\n", f.Key+":", f.Value)
		}
	}
	return nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "zpool-mqtt - ZFS pool metrics to MQTT with Home Assistant discovery")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: zpool-mqtt [flags] [command]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Run the bridge (default)")
	fmt.Fprintln(w, "  once         Poll and print pools without publishing")
	fmt.Fprintln(w, "  init [dir]   Write a starter config.yaml (default: current directory)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/zpool-mqtt/config.yaml, /etc/zpool-mqtt/config.yaml")
	return nil
}

// newLogger constructs an slog.Logger writing to w as either JSON or
// text. All log output goes through slog; this helper standardizes the
// handler setup.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig finds, loads, and validates the config file. An explicit
// path must exist; otherwise [config.FindConfig] searches the default
// locations. Returns the parsed config and the path it came from.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
