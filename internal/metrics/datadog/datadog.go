// Package datadog sends pipeline metrics to a DogStatsD agent.
//
// The generic metric names are reshaped for Datadog: record counters become
// one count per kind (tripetl.records.inserted, tripetl.records.skipped, ...),
// sub-batches are counted under tripetl.batches tagged by status, and step
// durations are sent as timings in milliseconds. The job is a global tag, so
// the per-call job label is not repeated.
package datadog

import (
	"fmt"
	"sort"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"tripetl/internal/metrics"
)

// DefaultNamespace prefixes every metric when Config.Namespace is empty.
const DefaultNamespace = "tripetl."

// Config holds Datadog backend configuration.
type Config struct {
	// Addr is the DogStatsD address, e.g. "127.0.0.1:8125" or "unix:///var/run/datadog/dsd.socket".
	Addr       string
	Namespace  string
	GlobalTags []string
}

// sender is the part of *statsd.Client the backend uses.
type sender interface {
	Count(name string, value int64, tags []string, rate float64) error
	Timing(name string, value time.Duration, tags []string, rate float64) error
	Close() error
}

// Backend implements metrics.Backend on top of DogStatsD.
type Backend struct {
	client sender
}

// NewBackend dials the agent described by cfg. Addr is required.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("datadog: Addr is required")
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	c, err := statsd.New(cfg.Addr, statsd.WithNamespace(ns), statsd.WithTags(cfg.GlobalTags))
	if err != nil {
		return nil, fmt.Errorf("datadog: create client: %w", err)
	}
	return &Backend{client: c}, nil
}

// IncCounter maps the pipeline counters onto Datadog counts. Deltas are
// whole row or batch counts.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	switch name {
	case metrics.RecordsTotal:
		kind := labels["kind"]
		if kind == "" {
			kind = "unknown"
		}
		_ = b.client.Count("records."+kind, int64(delta), tags(labels, "kind"), 1)
	case metrics.BatchesTotal:
		_ = b.client.Count("batches", int64(delta), tags(labels), 1)
	case metrics.StepTotal:
		_ = b.client.Count("steps", int64(delta), tags(labels), 1)
	default:
		_ = b.client.Count(name, int64(delta), tags(labels), 1)
	}
}

// ObserveHistogram sends step durations (seconds) as timings.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	if name == metrics.StepDuration {
		name = "step.duration"
	}
	d := time.Duration(value * float64(time.Second))
	_ = b.client.Timing(name, d, tags(labels), 1)
}

// Flush closes the client, which flushes any buffered packets. Call it once
// at exit.
func (b *Backend) Flush() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

// tags renders labels as sorted "key:value" tags, leaving out job (a global
// tag) and any key in omit.
func tags(lbls metrics.Labels, omit ...string) []string {
	var out []string
outer:
	for k, v := range lbls {
		if k == "job" {
			continue
		}
		for _, o := range omit {
			if k == o {
				continue outer
			}
		}
		out = append(out, k+":"+v)
	}
	sort.Strings(out)
	return out
}
