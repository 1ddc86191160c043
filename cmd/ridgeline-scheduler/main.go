// Command ridgeline-scheduler runs the control-plane scheduling process
// (spec.md §4): the worker registry, the reconciliation state manager,
// and both gRPC services workers and controllers talk to.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/ridgeline/pkg/config"
	"github.com/cuemby/ridgeline/pkg/health"
	"github.com/cuemby/ridgeline/pkg/log"
	"github.com/cuemby/ridgeline/pkg/metrics"
	"github.com/cuemby/ridgeline/pkg/scheduler"
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
	Use:     "ridgeline-scheduler",
	Short:   "Ridgeline scheduling process: worker registry and reconciliation loop",
	Version: Version,
	RunE:    runScheduler,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("ridgeline-scheduler version %s\nCommit: %s\n", Version, Commit))

	rootCmd.Flags().String("config", "/etc/ridgeline/scheduler.toml", "Path to scheduler TOML configuration")
	rootCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the metrics and health HTTP server")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSchedulerConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return fmt.Errorf("failed to seed placement rng: %w", err)
	}

	sched := scheduler.New(scheduler.Config{
		EventBusCapacity:          cfg.EventBusCapacity,
		WorkerQueueCapacity:       cfg.WorkerQueueCapacity,
		SubscriptionQueueCapacity: cfg.SubscriptionQueueCapacity,
		Seed:                      seed,
	})

	workersLis, err := net.Listen("tcp", cfg.WorkersEndpoint)
	if err != nil {
		return fmt.Errorf("failed to listen on workers_endpoint %s: %w", cfg.WorkersEndpoint, err)
	}

	controllerEndpoint := cfg.ControllerEndpoint
	if controllerEndpoint == "" {
		controllerEndpoint = cfg.WorkersEndpoint
	}
	controllerLis := workersLis
	if controllerEndpoint != cfg.WorkersEndpoint {
		controllerLis, err = net.Listen("tcp", controllerEndpoint)
		if err != nil {
			return fmt.Errorf("failed to listen on controller_endpoint %s: %w", controllerEndpoint, err)
		}
	}

	checker := health.NewChecker(Version, "scheduler")
	checker.RegisterComponent("scheduler", true, "serving")

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

	fmt.Printf("ridgeline-scheduler listening: workers=%s controllers=%s metrics=%s\n",
		cfg.WorkersEndpoint, controllerEndpoint, metricsAddr)

	err = sched.Serve(ctx, workersLis, controllerLis)
	_ = metricsSrv.Close()
	return err
}
