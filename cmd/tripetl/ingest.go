package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tripetl/internal/config"
	"tripetl/internal/pipeline"
)

func newIngestCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Acquire, clean and load the configured CSV, then verify the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			flush := setupMetrics(cfg, opts.verbose)
			defer flush()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runIngest(ctx, cfg, opts.verbose)
		},
	}
	addSourceFlags(cmd, opts)

	f := cmd.Flags()
	f.StringVar(&opts.metricsBackend, "metrics-backend", "", "metrics backend: none, pushgateway, datadog")
	f.StringVar(&opts.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL")
	f.StringVar(&opts.datadogAddr, "datadog-addr", "", "DogStatsD address, e.g. 127.0.0.1:8125")
	return cmd
}

func runIngest(ctx context.Context, cfg config.Pipeline, verbose bool) error {
	start := time.Now()
	r := &pipeline.Runner{Config: cfg, Verbose: verbose}
	if _, err := r.Run(ctx); err != nil {
		return err
	}
	if verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
	return nil
}
