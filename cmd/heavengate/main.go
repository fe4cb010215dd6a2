package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmonastyrskiy/HeavenGate/pkg/bus"
	"github.com/mmonastyrskiy/HeavenGate/pkg/config"
	"github.com/mmonastyrskiy/HeavenGate/pkg/dashboard"
	"github.com/mmonastyrskiy/HeavenGate/pkg/healthcheck"
	"github.com/mmonastyrskiy/HeavenGate/pkg/log"
	"github.com/mmonastyrskiy/HeavenGate/pkg/metrics"
	"github.com/mmonastyrskiy/HeavenGate/pkg/proxy"
	"github.com/mmonastyrskiy/HeavenGate/pkg/registry"
	"github.com/mmonastyrskiy/HeavenGate/pkg/strategy"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "heavengate",
	Short:   "HeavenGate - deception-aware TCP reverse proxy",
	Long:    `HeavenGate classifies incoming TCP connections as benign or malicious and routes them to disjoint real or honeypot backend pools.`,
	Version: Version,
	RunE:    runServe,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"HeavenGate version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to config file (defaults to $HG_BASE/config/default.ini)")

	rootCmd.Flags().String("listen-addr", "0.0.0.0:9000", "Data-plane listen address")
	rootCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Metrics/health listen address")
	rootCmd.Flags().String("strategy", string(strategy.RoundRobin), "Selection strategy: round_robin, least_connections, ip_hash, weighted")
	rootCmd.Flags().Int("health-interval-seconds", 30, "Health check interval in seconds")
	rootCmd.Flags().Int("health-timeout-seconds", 2, "Health check dial timeout in seconds")
	rootCmd.Flags().Int("bus-queue-size", 1000, "Maximum number of queued bus events")
	rootCmd.Flags().String("dashboard-host", "", "Dashboard reporting host (empty disables dashboard notifications)")
	rootCmd.Flags().Int("dashboard-port", dashboard.DefaultPort, "Dashboard reporting port")
	rootCmd.Flags().StringSlice("real-backend", nil, "Real backend as id,host,port[,weight] (repeatable)")
	rootCmd.Flags().StringSlice("honeypot-backend", nil, "Honeypot backend as id,host,port[,weight] (repeatable)")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func loadConfig(cmd *cobra.Command) *config.Config {
	path, _ := cmd.PersistentFlags().GetString("config")
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.WithComponent("main").Warn().Err(err).Str("path", path).Msg("failed to load config file, using flag/compiled defaults only")
		cfg = &config.Config{}
	}
	return cfg
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	logger := log.WithComponent("main")

	listenAddr := config.StringSetting(cmd, "listen-addr", "listen_addr", cfg, "0.0.0.0:9000")
	metricsAddr := config.StringSetting(cmd, "metrics-addr", "metrics_addr", cfg, "127.0.0.1:9090")
	strategyName := strategy.Name(config.StringSetting(cmd, "strategy", "strategy", cfg, string(strategy.RoundRobin)))
	healthIntervalSec := config.IntSetting(cmd, "health-interval-seconds", "health_interval_seconds", cfg, 30)
	healthTimeoutSec := config.IntSetting(cmd, "health-timeout-seconds", "health_timeout_seconds", cfg, 2)
	busQueueSize := config.IntSetting(cmd, "bus-queue-size", "bus_queue_size", cfg, 1000)
	dashboardHost := config.StringSetting(cmd, "dashboard-host", "dashboard_host", cfg, "")
	dashboardPort := config.IntSetting(cmd, "dashboard-port", "dashboard_port", cfg, dashboard.DefaultPort)

	realSpecs, _ := cmd.Flags().GetStringSlice("real-backend")
	honeypotSpecs, _ := cmd.Flags().GetStringSlice("honeypot-backend")

	fmt.Println("Starting HeavenGate...")
	fmt.Printf("  Listen Address: %s\n", listenAddr)
	fmt.Printf("  Metrics Address: %s\n", metricsAddr)
	fmt.Printf("  Strategy: %s\n", strategyName)
	fmt.Println()

	eventBus := bus.New(busQueueSize)
	eventBus.Start()

	backendRegistry := registry.New(eventBus)
	if err := registerBackends(backendRegistry, realSpecs, false); err != nil {
		return fmt.Errorf("failed to register real backends: %w", err)
	}
	if err := registerBackends(backendRegistry, honeypotSpecs, true); err != nil {
		return fmt.Errorf("failed to register honeypot backends: %w", err)
	}

	var notifier dashboard.Notifier
	if dashboardHost != "" {
		notifier = dashboard.New(dashboardHost, dashboardPort)
	}

	checker := healthcheck.New(backendRegistry, eventBus,
		time.Duration(healthIntervalSec)*time.Second,
		time.Duration(healthTimeoutSec)*time.Second,
	)
	checker.Start()
	fmt.Println("✓ Health checker started")

	p := proxy.New(proxy.Config{
		ListenAddr: listenAddr,
		Strategy:   strategyName,
	}, backendRegistry, eventBus, strategy.NewSelector(), notifier)

	if err := p.Start(); err != nil {
		return fmt.Errorf("failed to start proxy: %w", err)
	}
	fmt.Printf("✓ Proxy listening on %s\n", listenAddr)

	collector := metrics.NewCollector(eventBus, backendRegistry, p)
	collector.Start()
	fmt.Println("✓ Metrics collector started")

	metrics.SetVersion(Version)
	metrics.RegisterCritical("bus", func() (bool, string) {
		if eventBus.Running() {
			return true, ""
		}
		return false, "worker not running"
	})
	metrics.RegisterCritical("registry", backendRegistry.Ready)
	metrics.RegisterCritical("proxy", func() (bool, string) {
		if p.Running() {
			return true, ""
		}
		return false, "not listening"
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/healthz", metrics.HealthHandler())
	mux.Handle("/readyz", metrics.ReadyHandler())
	mux.Handle("/livez", metrics.LivenessHandler())

	metricsServer := &http.Server{Addr: metricsAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()
	fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", metricsAddr)
	fmt.Printf("✓ Health endpoints: http://%s/healthz, /readyz, /livez\n", metricsAddr)
	fmt.Println()
	fmt.Println("HeavenGate is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		logger.Error().Err(err).Msg("fatal error, shutting down")
	}

	p.Stop()
	checker.Stop()
	collector.Stop()
	eventBus.Stop()
	_ = metricsServer.Close()

	fmt.Println("✓ Shutdown complete")
	return nil
}

// registerBackends parses id,host,port[,weight] specs and adds them to
// the registry under the given pool.
func registerBackends(r *registry.Registry, specs []string, isHoneypot bool) error {
	for _, spec := range specs {
		parts := strings.Split(spec, ",")
		if len(parts) < 3 {
			return fmt.Errorf("invalid backend spec %q: expected id,host,port[,weight]", spec)
		}

		id := strings.TrimSpace(parts[0])
		host := strings.TrimSpace(parts[1])
		port, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return fmt.Errorf("invalid port in backend spec %q: %w", spec, err)
		}

		weight := 1.0
		if len(parts) >= 4 {
			weight, err = strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
			if err != nil {
				return fmt.Errorf("invalid weight in backend spec %q: %w", spec, err)
			}
		}

		r.AddBackend(registry.NewBackend(id, host, port, isHoneypot, weight))
	}
	return nil
}
