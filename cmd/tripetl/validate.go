package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tripetl/internal/config"
	"tripetl/internal/datasource"
	"tripetl/internal/datasource/s3ds"
	csvparser "tripetl/internal/parser/csv"
	"tripetl/internal/pipeline"
	"tripetl/internal/schema"
)

// headerBytes is how much of the source is fetched to read its header.
const headerBytes = 64 << 10

func newValidateCmd(opts *options) *cobra.Command {
	var showHeader bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Print configuration issues and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			issues := config.ValidatePipeline(cfg)
			for _, iss := range issues {
				fmt.Fprintf(out, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
			}
			if config.HasErrors(issues) {
				return fmt.Errorf("%w: %d issue(s) in configuration", pipeline.ErrConfig, len(issues))
			}
			fmt.Fprintln(out, "configuration is valid")

			if showHeader {
				return printHeaderMapping(cmd.Context(), out, cfg)
			}
			return nil
		},
	}
	addSourceFlags(cmd, opts)
	cmd.Flags().BoolVar(&showHeader, "header", false, "fetch the source header and show how each column maps")
	return cmd
}

// printHeaderMapping reads the first bytes of the source and prints the canonical
// column each header cell maps to.
func printHeaderMapping(ctx context.Context, out io.Writer, cfg config.Pipeline) error {
	locator := cfg.Source.Locator
	if strings.TrimSpace(cfg.Source.LocalFile) != "" {
		locator = cfg.Source.LocalFile
	}
	src, err := datasource.FromLocator(locator, datasource.Options{
		UserAgent:          cfg.Source.UserAgent,
		Timeout:            cfg.Runtime.IOTimeout.Std(),
		MaxRetries:         cfg.Source.HTTP.MaxRetries,
		InsecureSkipVerify: cfg.Source.HTTP.InsecureSkipVerify,
		S3: s3ds.Config{
			Region:          cfg.Source.S3.Region,
			Endpoint:        cfg.Source.S3.Endpoint,
			AccessKeyID:     cfg.Source.S3.AccessKeyID,
			SecretAccessKey: cfg.Source.S3.SecretAccessKey,
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrConfig, err)
	}
	head, err := datasource.Peek(ctx, src, headerBytes)
	if err != nil {
		return fmt.Errorf("read header of %s: %w", locator, err)
	}
	cr, err := csvparser.NewChunkReader(bytes.NewReader(head), csvparser.Options{
		Comma:      cfg.Parser.CommaRune(),
		LazyQuotes: cfg.Parser.LazyQuotes,
	})
	if err != nil {
		return fmt.Errorf("read header of %s: %w", locator, err)
	}

	fmt.Fprintf(out, "header of %s:\n", locator)
	for _, h := range cr.Header() {
		target := "(dropped)"
		if c, ok := schema.Lookup(h); ok {
			target = c.Name
		}
		fmt.Fprintf(out, "  %-28s -> %s\n", h, target)
	}
	return nil
}
