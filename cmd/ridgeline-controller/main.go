// Command ridgeline-controller runs the user-facing control process
// (spec.md §4.1): the HTTP CRUD surface over workloads, backed by a
// local SQLite store and a gRPC client to the scheduler.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/ridgeline/pkg/config"
	"github.com/cuemby/ridgeline/pkg/controller"
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
	Use:     "ridgeline-controller",
	Short:   "Ridgeline controller process: workload CRUD API",
	Version: Version,
	RunE:    runController,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("ridgeline-controller version %s\nCommit: %s\n", Version, Commit))

	rootCmd.Flags().String("config", "/etc/ridgeline/controller.toml", "Path to controller TOML configuration")
	rootCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.Flags().String("metrics-addr", "127.0.0.1:9091", "Address for the metrics and health HTTP server")
}

func runController(cmd *cobra.Command, args []string) error {
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadControllerConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctrl, err := controller.New(controller.Config{
		HTTPAddr:          cfg.HTTPAddr,
		SQLitePath:        cfg.SQLitePath,
		SchedulerEndpoint: cfg.SchedulerEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}
	defer ctrl.Close()

	checker := health.NewChecker(Version, "controller", "scheduler_conn")
	checker.RegisterComponent("controller", true, "serving")
	checker.RegisterComponent("scheduler_conn", true, "dialed")

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

	fmt.Printf("ridgeline-controller listening: http=%s scheduler=%s metrics=%s\n",
		cfg.HTTPAddr, cfg.SchedulerEndpoint, metricsAddr)

	err = ctrl.Serve(ctx, cfg.HTTPAddr)
	_ = metricsSrv.Close()
	return err
}
