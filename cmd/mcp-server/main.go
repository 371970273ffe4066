package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"mcp-toolserver/internal/server"
	"mcp-toolserver/pkg/config"
	"mcp-toolserver/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

type options struct {
	transport   string
	listen      string
	metricsAddr string
	manifest    string
	handlers    string
	logLevel    string
	noValidate  bool
}

func main() {
	if err := newRootCommand(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:          "mcp-server",
		Short:        "Serve registered tools and resources over stdio, TCP or MCP",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, manifest, err := loadConfig(&opts, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, manifest, stdin, stdout, stderr)
		},
	}
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	bindFlags(cmd.Flags(), &opts)
	return cmd
}

func bindFlags(f *pflag.FlagSet, opts *options) {
	f.StringVar(&opts.transport, "transport", config.TransportEnvelope, "transport: envelope, mcp or tcp")
	f.StringVar(&opts.listen, "listen", "127.0.0.1:7070", "listen address for the tcp transport")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.StringVar(&opts.manifest, "manifest", "", "YAML manifest with extra resources")
	f.StringVar(&opts.handlers, "handlers", config.HandlerSystem, "comma separated handler sets (system, docker, github)")
	f.StringVar(&opts.logLevel, "log-level", "INFO", "logging level (DEBUG, INFO, WARN, ERROR)")
	f.BoolVar(&opts.noValidate, "no-validate", false, "skip schema validation of tool arguments")
}

// loadConfig layers the configuration: environment first, then the manifest,
// then any flag given explicitly on the command line.
func loadConfig(opts *options, flags *pflag.FlagSet) (*config.Config, *config.Manifest, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	if flags.Changed("manifest") {
		cfg.Server.Manifest = opts.manifest
	}
	var manifest *config.Manifest
	if cfg.Server.Manifest != "" {
		manifest, err = config.LoadManifest(cfg.Server.Manifest)
		if err != nil {
			return nil, nil, err
		}
		manifest.Apply(cfg)
	}

	if flags.Changed("transport") {
		cfg.Server.Transport = opts.transport
	}
	if flags.Changed("listen") {
		cfg.Server.ListenAddr = opts.listen
	}
	if flags.Changed("metrics-addr") {
		cfg.Server.MetricsAddr = opts.metricsAddr
	}
	if flags.Changed("handlers") {
		cfg.SetHandlerSets(config.SplitList(opts.handlers))
	}
	if flags.Changed("log-level") {
		cfg.Server.LogLevel = opts.logLevel
	}
	if flags.Changed("no-validate") {
		cfg.Server.ValidateArguments = !opts.noValidate
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, manifest, nil
}

func run(ctx context.Context, cfg *config.Config, manifest *config.Manifest, stdin io.Reader, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lm := logging.NewLoggingManagerWithWriter(stderr)
	lm.SetLogLevel(cfg.Server.LogLevel)
	logger := lm.GetLogger("main")

	srv, err := server.New(ctx, server.Options{
		Config:         cfg,
		Manifest:       manifest,
		LoggingManager: lm,
		Stdin:          stdin,
		Stdout:         stdout,
	})
	if err != nil {
		logger.WithError(err).Error("Startup failed")
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case err = <-errCh:
		if err != nil {
			logger.WithError(err).Error("Server stopped with error")
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal, gracefully shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.WithError(shutdownErr).Error("Error during shutdown")
	}
	return err
}
