// Package config provides configuration models and helpers for the pipeline.
//
// This file adds a lightweight linter/validator for Pipeline values. It
// performs static checks over a resolved Pipeline and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"net/url"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "runtime.batch_size"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline performs static validation / linting of a Pipeline.
//
// It does not mutate the pipeline. Callers decide whether to treat warnings
// as fatal; the CLI aborts on any SeverityError.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateParser(p.Parser)...)
	issues = append(issues, validateStorage(p)...)
	issues = append(issues, validateRuntime(p.Runtime)...)
	issues = append(issues, validateMetrics(p.Metrics)...)

	return issues
}

// validateSource enforces that there is something to read: a locator to
// acquire or a local file to use as-is.
func validateSource(s Source) []Issue {
	var issues []Issue

	hasLocal := strings.TrimSpace(s.LocalFile) != ""
	hasLocator := strings.TrimSpace(s.Locator) != ""

	if s.SkipDownload && !hasLocal {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.skip_download",
			Message:  "skip_download requires source.file pointing at an existing CSV",
		})
	}
	if !hasLocal && !hasLocator {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.url",
			Message:  "no source: set source.url or source.file",
		})
		return issues
	}
	if hasLocal && hasLocator && !s.SkipDownload {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "source.file",
			Message:  "source.file overrides source.url; the URL will not be downloaded",
		})
	}

	if hasLocator && !hasLocal {
		if u, err := url.Parse(s.Locator); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
			switch u.Scheme {
			case "http", "https", "ftp", "s3", "file":
			default:
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     "source.url",
					Message:  fmt.Sprintf("unsupported locator scheme %q", u.Scheme),
				})
			}
			if u.Scheme == "s3" && strings.TrimPrefix(u.Path, "/") == "" {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     "source.url",
					Message:  "s3 locator must name an object key (s3://bucket/key)",
				})
			}
		}
	}
	if s.HTTP.MaxRetries < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.http.max_retries",
			Message:  "max_retries must not be negative",
		})
	}

	return issues
}

func validateParser(p Parser) []Issue {
	var issues []Issue
	if len([]rune(p.Comma)) > 1 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "parser.comma",
			Message:  fmt.Sprintf("comma %q has more than one rune; only the first is used", p.Comma),
		})
	}
	switch p.CommaRune() {
	case '"', '\r', '\n':
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.comma",
			Message:  "comma must not be a quote or newline character",
		})
	}
	for i, l := range p.TimeLayouts {
		if strings.TrimSpace(l) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("parser.time_layouts[%d]", i),
				Message:  "time layout must not be empty",
			})
		}
	}
	return issues
}

// validateStorage validates storage configuration and DB settings.
func validateStorage(p Pipeline) []Issue {
	var issues []Issue
	s := p.Storage

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
		return issues
	}

	known := map[string]struct{}{
		"postgres": {},
		"mysql":    {},
		"mssql":    {},
		"sqlite":   {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
		})
	}

	if _, err := p.ResolveDSN(); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.dsn",
			Message:  err.Error(),
		})
	}
	if strings.TrimSpace(s.DB.Table) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.table",
			Message:  "storage.db.table must not be empty",
		})
	}

	return issues
}

// validateRuntime rejects non-positive sizes and negative timeouts.
func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue

	if r.ChunkSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.chunk_size",
			Message:  fmt.Sprintf("chunk_size=%d; must be a positive integer", r.ChunkSize),
		})
	}
	if r.BatchSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.batch_size",
			Message:  fmt.Sprintf("batch_size=%d; must be a positive integer", r.BatchSize),
		})
	}
	if r.ChunkSize > 0 && r.BatchSize > r.ChunkSize {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.batch_size",
			Message:  fmt.Sprintf("batch_size=%d exceeds chunk_size=%d; each chunk will be a single sub-batch", r.BatchSize, r.ChunkSize),
		})
	}
	if r.IOTimeout < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.io_timeout",
			Message:  "io_timeout must not be negative",
		})
	}

	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch m.Backend {
	case "", "none":
	case "pushgateway":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "metrics.pushgateway_url",
				Message:  "pushgateway backend without URL; metrics will be disabled",
			})
		}
	case "datadog":
		if strings.TrimSpace(m.DatadogAddr) == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "metrics.datadog_addr",
				Message:  "datadog backend without agent address; metrics will be disabled",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; metrics will be disabled", m.Backend),
		})
	}
	return issues
}
