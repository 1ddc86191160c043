// Command ridgeline-agent runs the per-node agent process (spec.md
// §4.3): it registers with the scheduler, drives containerd to realize
// scheduled instances, and reports status back.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/ridgeline/pkg/agent"
	"github.com/cuemby/ridgeline/pkg/config"
	"github.com/cuemby/ridgeline/pkg/health"
	"github.com/cuemby/ridgeline/pkg/log"
	"github.com/cuemby/ridgeline/pkg/metrics"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "ridgeline-agent",
	Short:   "Ridgeline node agent: realizes scheduled instances via containerd",
	Version: Version,
	RunE:    runAgent,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("ridgeline-agent version %s\nCommit: %s\n", Version, Commit))

	rootCmd.Flags().String("config", "/etc/ridgeline/agent.toml", "Path to node agent TOML configuration")
	rootCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.Flags().String("metrics-addr", "127.0.0.1:9092", "Address for the metrics and health HTTP server")
}

func runAgent(cmd *cobra.Command, args []string) error {
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadAgentConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	a, err := agent.New(agent.Config{
		SchedulerEndpoint: cfg.Scheduler,
		Hostname:          cfg.Hostname,
		ContainerdSocket:  cfg.Runtime.ContainerdSocket,
		ImageCacheDir:     cfg.ImageManager.CacheDir,
	})
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	defer a.Close()

	checker := health.NewChecker(Version, "agent", "containerd")
	checker.RegisterComponent("agent", true, "running")
	checker.RegisterComponent("containerd", true, "connected")

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsMux.HandleFunc("/health", checker.HealthHandler())
	metricsMux.HandleFunc("/ready", checker.ReadyHandler())
	metricsMux.HandleFunc("/live", checker.LivenessHandler())
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	fmt.Printf("ridgeline-agent starting: hostname=%s scheduler=%s metrics=%s\n",
		cfg.Hostname, cfg.Scheduler, metricsAddr)

	err = a.Run(ctx)
	_ = metricsSrv.Close()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
