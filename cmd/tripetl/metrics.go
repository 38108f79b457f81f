package main

import (
	"log"

	"tripetl/internal/config"
	"tripetl/internal/metrics"
	"tripetl/internal/metrics/datadog"
	"tripetl/internal/metrics/prompush"
)

const defaultPushgatewayURL = "http://localhost:9091"

// setupMetrics installs the configured backend and returns the function that
// flushes it at exit. Backend failures degrade to the no-op backend.
func setupMetrics(cfg config.Pipeline, verbose bool) func() {
	flush := func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}

	switch cfg.Metrics.Backend {
	case "pushgateway":
		gwURL := cfg.Metrics.PushgatewayURL
		if gwURL == "" {
			gwURL = defaultPushgatewayURL
		}
		b, err := prompush.NewBackend(cfg.Job, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: backend=pushgateway url=%s job_name=%s", gwURL, cfg.Job)
		metrics.SetBackend(b)
		return flush

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       cfg.Metrics.DatadogAddr,
			Namespace:  cfg.Metrics.DatadogNamespace,
			GlobalTags: append([]string{"job:" + cfg.Job}, cfg.Metrics.DatadogTags...),
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: backend=datadog addr=%s", cfg.Metrics.DatadogAddr)
		metrics.SetBackend(b)
		return flush

	case "", "none":
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", cfg.Metrics.Backend)
		}
		return func() {}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", cfg.Metrics.Backend)
		return func() {}
	}
}
