// Package cmd implements the openalex command line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/openalex-client/internal/config"
	"github.com/Sternrassler/openalex-client/pkg/logging"
	"github.com/Sternrassler/openalex-client/pkg/merge"
	"github.com/Sternrassler/openalex-client/pkg/metrics"
	"github.com/Sternrassler/openalex-client/pkg/openalex"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// globalOptions holds flags shared by every command.
type globalOptions struct {
	configFile  string
	logLevel    string
	pretty      bool
	email       string
	apiKey      string
	concurrency int
	dryRun      bool
	debug       bool
	metricsAddr string

	client  *openalex.Client
	metrics *metrics.Server
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "openalex",
		Short: "Retrieve complete result sets from the OpenAlex API",
		Long: `openalex retrieves filtered, sorted and grouped OpenAlex queries and
handles pagination, rate limiting, retries and concurrent ID-list batches.

Configuration is read from openalex.yaml (or --config) and OPENALEX_*
environment variables, e.g. OPENALEX_EMAIL for the polite pool.`,
		Version:       Version + " (" + Commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "Path to configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	flags.BoolVar(&opts.pretty, "pretty", false, "Human-readable console logs")
	flags.StringVar(&opts.email, "email", "", "Contact email for the polite pool")
	flags.StringVar(&opts.apiKey, "api-key", "", "OpenAlex API key")
	flags.IntVar(&opts.concurrency, "concurrency", 0, "Override maximum concurrent requests")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Print the request URL and exit")
	flags.BoolVar(&opts.debug, "debug", false, "Shortcut for --log-level debug")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")

	rootCmd.AddCommand(newGetCmd(opts), newIDsCmd(opts), newCountCmd(opts))
	return rootCmd
}

// Execute runs the root command. SIGINT and SIGTERM cancel in-flight requests.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	logging.Close()
	os.Exit(code)
}

func run(ctx context.Context, args []string) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(rootCmd.ErrOrStderr(), err)
		return 1
	}
	return 0
}

// setup loads configuration, configures logging and creates the client.
// Callers release it with close.
func (o *globalOptions) setup(policy merge.Policy) (*openalex.Client, *config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, nil, err
	}
	logLevel := o.logLevel
	if o.debug {
		logLevel = "debug"
	}
	cfg.ApplyOverrides(o.email, o.apiKey, logLevel, o.concurrency)
	if o.pretty {
		cfg.LogPretty = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logging.Setup(cfg.LoggingConfig())

	client, err := openalex.New(cfg.OpenAlexConfig(policy))
	if err != nil {
		return nil, nil, err
	}
	o.client = client

	if o.metricsAddr != "" {
		srv, err := metrics.Serve(o.metricsAddr)
		if err != nil {
			o.close()
			return nil, nil, fmt.Errorf("metrics server: %w", err)
		}
		o.metrics = srv
	}

	log.Debug().
		Str("url", cfg.URL).
		Bool("polite_pool", cfg.Email != "").
		Int("max_concurrent", cfg.MaxConcurrent).
		Msg("Client configured")
	return client, cfg, nil
}

func (o *globalOptions) close() {
	if o.metrics != nil {
		if err := o.metrics.Close(); err != nil {
			log.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
		o.metrics = nil
	}
	if o.client != nil {
		o.client.Close()
		o.client = nil
	}
}
