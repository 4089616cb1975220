// Command fabric-coordinator runs the coordinator control plane: it
// accepts worker connections, tracks their reported capacity, partitions
// the configured model across them, and sends each one its layer
// assignment.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tensorfabric/fabric/pkg/coordinator"
	"github.com/tensorfabric/fabric/pkg/fabricconfig"
)

func main() {
	var overrides fabricconfig.Overrides
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "fabric-coordinator [port]",
		Short: "tensorfabric coordinator: partitions a model across connected workers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Flags(), configPath, args, &overrides)
		},
		SilenceUsage: true,
	}

	f := rootCmd.Flags()
	f.StringVarP(&configPath, "config", "f", "", "path to YAML config file (overrides FABRIC_CONFIG env)")

	overrides.BindAddress = f.String("bind-address", "", "address to bind the listener to")
	overrides.MaxNodes = f.Int("max-nodes", 0, "maximum number of worker connections")
	overrides.ListenBacklog = f.Int("listen-backlog", 0, "TCP listen backlog")
	overrides.HeartbeatInterval = f.Duration("heartbeat-interval", 0, "interval between heartbeat pings")
	overrides.HeartbeatTimeout = f.Duration("heartbeat-timeout", 0, "duration of silence before a node is reaped")
	overrides.ExpectedWorkers = f.Int("expected-workers", 0, "number of workers to await before partitioning")
	overrides.TotalLayers = f.Int("total-layers", 0, "total number of model layers to partition")
	overrides.BytesPerLayer = f.Int64("bytes-per-layer", 0, "bytes of memory estimated per layer")
	overrides.PoolSize = f.Int("pool-size", 0, "size of the dispatch worker pool")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(flags *pflag.FlagSet, configPath string, args []string, overrides *fabricconfig.Overrides) error {
	if configPath == "" {
		configPath = os.Getenv("FABRIC_CONFIG")
	}

	cfg, err := fabricconfig.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(2)
	}

	if len(args) == 1 {
		port, convErr := parsePort(args[0])
		if convErr != nil {
			fmt.Fprintf(os.Stderr, "invalid port %q: %v\n", args[0], convErr)
			os.Exit(2)
		}
		cfg.Port = port
	}

	applyExplicitFlags(flags, cfg, overrides)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	coord := coordinator.New(cfg, logger)

	if err := coord.Start(); err != nil {
		logger.Error("listener failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	<-ctx.Done()
	_ = coord.Stop()

	time.Sleep(10 * time.Millisecond) // let in-flight log lines flush
	return nil
}

func parsePort(s string) (int, error) {
	var port int
	_, err := fmt.Sscanf(s, "%d", &port)
	return port, err
}

// applyExplicitFlags applies only the flags the user explicitly set, so
// unset flags fall through to the YAML/env-resolved config.
func applyExplicitFlags(flags *pflag.FlagSet, cfg *fabricconfig.Config, o *fabricconfig.Overrides) {
	applied := fabricconfig.Overrides{}
	if flags.Changed("bind-address") {
		applied.BindAddress = o.BindAddress
	}
	if flags.Changed("max-nodes") {
		applied.MaxNodes = o.MaxNodes
	}
	if flags.Changed("listen-backlog") {
		applied.ListenBacklog = o.ListenBacklog
	}
	if flags.Changed("heartbeat-interval") {
		applied.HeartbeatInterval = o.HeartbeatInterval
	}
	if flags.Changed("heartbeat-timeout") {
		applied.HeartbeatTimeout = o.HeartbeatTimeout
	}
	if flags.Changed("expected-workers") {
		applied.ExpectedWorkers = o.ExpectedWorkers
	}
	if flags.Changed("total-layers") {
		applied.TotalLayers = o.TotalLayers
	}
	if flags.Changed("bytes-per-layer") {
		applied.BytesPerLayer = o.BytesPerLayer
	}
	if flags.Changed("pool-size") {
		applied.PoolSize = o.PoolSize
	}
	cfg.Apply(&applied)
}
