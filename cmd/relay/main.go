package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	clientcmd "github.com/rzbill/relay/internal/cmd/client"
	serverrun "github.com/rzbill/relay/internal/cmd/server"
	cfgpkg "github.com/rzbill/relay/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	// .env is optional; real environment variables win.
	if err := cfgpkg.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	rootCmd := &cobra.Command{
		Use:   "relay",
		Short: "Relay streaming server CLI",
		Long:  "Relay admits bidirectional gRPC streams, publishes their messages to a topic bus and fans them out to stream, SSE and websocket consumers.",
	}

	// server start
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start relay server (gRPC and HTTP)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := serverrun.LoadConfig(configPath)
			if err != nil {
				return err
			}
			applyServerFlags(cmd, &cfg)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := serverrun.Run(ctx, serverrun.Options{Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	serverStartCmd.Flags().String("config", os.Getenv("RELAY_CONFIG"), "Config file (YAML or JSON)")
	serverStartCmd.Flags().String("grpc", "", "gRPC listen address (default :9090)")
	serverStartCmd.Flags().String("http", "", "HTTP listen address (default :8080)")
	serverStartCmd.Flags().Int("max-streams", 0, "Maximum concurrent gRPC streams")
	serverStartCmd.Flags().String("ingest-mode", "", "Ingestion mode: session|global")
	serverStartCmd.Flags().Int("workers", 0, "Global-mode ingest workers")
	serverStartCmd.Flags().String("topic", "", "Default topic")
	serverStartCmd.Flags().String("backplane", "", "Backplane: none|memory|redis|postgres")
	serverStartCmd.Flags().Bool("history", false, "Persist monitor reports")
	serverStartCmd.Flags().String("data-dir", "", "Data directory for history (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("log-level", "", "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", "", "Log format: text|json (default text)")
	serverStartCmd.Flags().Int("sub-flush-ms", 0, "Subscriber flush window in ms (default 0)")
	serverStartCmd.Flags().Int("sub-buf", 0, "Subscriber buffer size (default 1024)")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	// config validation without starting listeners
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := serverrun.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "config: OK")
			return nil
		},
	}
	checkCmd.Flags().String("config", os.Getenv("RELAY_CONFIG"), "Config file (YAML or JSON)")
	serverCmd.AddCommand(checkCmd)

	// publish, subscribe, stream, stats
	rootCmd.AddCommand(clientcmd.Commands(apiURL)...)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyServerFlags overlays explicitly set flags onto cfg.
func applyServerFlags(cmd *cobra.Command, cfg *cfgpkg.Config) {
	f := cmd.Flags()
	if f.Changed("grpc") {
		cfg.GRPCAddr, _ = f.GetString("grpc")
	}
	if f.Changed("http") {
		cfg.HTTPAddr, _ = f.GetString("http")
	}
	if f.Changed("max-streams") {
		cfg.MaxConcurrentStreams, _ = f.GetInt("max-streams")
	}
	if f.Changed("ingest-mode") {
		cfg.Ingest.Mode, _ = f.GetString("ingest-mode")
	}
	if f.Changed("workers") {
		cfg.Ingest.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("topic") {
		cfg.DefaultTopic, _ = f.GetString("topic")
	}
	if f.Changed("backplane") {
		cfg.Backplane.Kind, _ = f.GetString("backplane")
	}
	if f.Changed("history") {
		cfg.Monitor.History, _ = f.GetBool("history")
	}
	if f.Changed("data-dir") {
		cfg.Monitor.DataDir, _ = f.GetString("data-dir")
	}
	if f.Changed("log-level") {
		cfg.Log.Level, _ = f.GetString("log-level")
	}
	if f.Changed("log-format") {
		cfg.Log.Format, _ = f.GetString("log-format")
	}
	if f.Changed("sub-flush-ms") {
		ms, _ := f.GetInt("sub-flush-ms")
		cfg.Dispatch.FlushWindow = time.Duration(ms) * time.Millisecond
	}
	if f.Changed("sub-buf") {
		cfg.Dispatch.SubscriberBuffer, _ = f.GetInt("sub-buf")
	}
}

func apiURL() string {
	if v := os.Getenv("RELAY_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
