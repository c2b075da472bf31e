// metacoord is the metadata coordinator for a distributed chunk store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tunnelmesh/metacoord/internal/config"
	"github.com/tunnelmesh/metacoord/internal/coord"
	"github.com/tunnelmesh/metacoord/internal/logging/audit"
	"github.com/tunnelmesh/metacoord/internal/metrics"
	"github.com/tunnelmesh/metacoord/internal/placement"
	"github.com/tunnelmesh/metacoord/internal/server"
	"github.com/tunnelmesh/metacoord/internal/svc"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// metricsShutdownTimeout bounds draining the metrics HTTP server.
const metricsShutdownTimeout = 5 * time.Second

var (
	cfgFile  string
	logLevel string

	// Set by the service manager (hidden)
	serviceRun  bool
	serviceName string
)

func main() {
	// Check if running as a service (invoked by service manager)
	if svc.IsServiceMode(os.Args) {
		runAsService()
		return
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "metacoord",
		Short: "metacoord - chunk placement coordinator",
		Long: `metacoord tracks which storage node holds each chunk of each file and tells
clients where to write new chunks and where to read existing ones. It never stores
file data itself.

QUICK START:

  # Write an example configuration
  metacoord init -o metacoord.yaml

  # Start the coordinator
  metacoord serve --config metacoord.yaml

  # Ask where to put a 150MB file split into 64MB chunks
  metacoord upload movie.mp4 --size 150MB

  # Ask where the chunks of a file live
  metacoord download movie.mp4`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults apply when empty)")
	serveCmd.Flags().BoolVar(&serviceRun, "service-run", false, "Run as a service (internal use)")
	_ = serveCmd.Flags().MarkHidden("service-run")
	serveCmd.Flags().StringVar(&serviceName, "service-name", svc.DefaultServiceName, "Installed service name (internal use)")
	_ = serveCmd.Flags().MarkHidden("service-name")
	rootCmd.AddCommand(serveCmd)

	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newDownloadCmd())

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "metacoord %s\n", Version)
			_, _ = fmt.Fprintf(out, "  Commit:     %s\n", Commit)
			_, _ = fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
		},
	}
	rootCmd.AddCommand(versionCmd)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write an example configuration file",
		RunE:  runInit,
	}
	initCmd.Flags().StringP("output", "o", "metacoord.yaml", "Output path")
	initCmd.Flags().BoolP("force", "f", false, "Overwrite an existing file")
	rootCmd.AddCommand(initCmd)

	rootCmd.AddCommand(newServiceCmd())

	return rootCmd
}

func runServe(cmd *cobra.Command, args []string) error {
	setupLogging()
	log.Info().
		Str("version", Version).
		Str("commit", Commit).
		Msg("starting metacoord")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfgFile)
}

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (*config.ServerConfig, error) {
	cfg := config.DefaultServerConfig()
	if path != "" {
		loaded, err := config.LoadServerConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// serve runs the coordinator and, when configured, the metrics endpoint until ctx is
// cancelled or either fails.
func serve(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	config.ApplyLogLevel(cfg.LogLevel)

	nodes, err := placement.NewStaticNodes(cfg.Placement.Nodes)
	if err != nil {
		return fmt.Errorf("load storage nodes: %w", err)
	}

	m := metrics.InitCoordMetrics(metrics.Registry)

	var auditLogger *audit.Logger
	if cfg.Audit.Enabled {
		auditLogger = audit.NewLogger(log.Logger)
	}

	coordinator, err := coord.New(coord.Config{
		Nodes:     nodes,
		Placement: cfg.Placement.PolicyConfig(),
		Metrics:   m,
		Audit:     auditLogger,
	}, log.Logger)
	if err != nil {
		return fmt.Errorf("create coordinator: %w", err)
	}

	if len(coordinator.Nodes()) == 0 {
		log.Warn().Msg("no storage nodes configured, uploads will be answered with no placements")
	}
	log.Info().
		Strs("nodes", coordinator.Nodes()).
		Int("cursor_stride", cfg.Placement.CursorStride).
		Int("max_chunks_per_request", cfg.Placement.MaxChunksPerRequest).
		Bool("record_replicas", cfg.Placement.RecordReplicas).
		Msg("placement configured")

	srv := server.NewServer(server.Config{
		Listen:       cfg.Listen,
		MaxWorkers:   cfg.MaxWorkers,
		ReadTimeout:  cfg.ReadTimeout.Std(),
		WriteTimeout: cfg.WriteTimeout.Std(),
		MaxChunks:    cfg.Placement.MaxChunksPerRequest,
		Metrics:      m,
	}, coordinator, log.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})

	if cfg.Metrics.Listen != "" {
		collector := metrics.NewCollector(m, coordinator.Table())
		g.Go(func() error {
			collector.Run(gctx, cfg.Metrics.CollectInterval.Std())
			return nil
		})
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Listen)
		})
	}

	return g.Wait()
}

// serveMetrics exposes /metrics on addr until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen for metrics on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()
	log.Info().Str("addr", listener.Addr().String()).Msg("metrics listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("metrics server shutdown")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	force, _ := cmd.Flags().GetBool("force")

	if _, err := os.Stat(output); err == nil && !force {
		return fmt.Errorf("%s already exists; use --force to overwrite", output)
	}
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(output, []byte(config.ExampleServerConfig), 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
	return nil
}

func runAsService() {
	// The service manager starts us as "serve --service-run --service-name <name> --config <path>".
	cfg := svc.ParseServiceArgs(os.Args[1:])
	setupServiceLogging(svc.LogFilePath(cfg.Name))

	log.Info().
		Str("version", Version).
		Str("config", cfg.ConfigPath).
		Msg("starting as service")

	prg := &svc.Program{
		ConfigPath: cfg.ConfigPath,
		Run:        serve,
	}
	if err := svc.Run(prg, &cfg); err != nil {
		log.Fatal().Err(err).Msg("service error")
	}
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func setupServiceLogging(path string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// launchd and some service managers do not capture stderr reliably
	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		return
	}

	multi := io.MultiWriter(logFile, os.Stderr)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: multi, TimeFormat: time.RFC3339})
}
