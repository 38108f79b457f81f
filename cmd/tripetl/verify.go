package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tripetl/internal/pipeline"
)

func newVerifyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Report the row count and hourly average fare of the configured table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			res, err := (&pipeline.Runner{Config: cfg, Verbose: opts.verbose}).Verify(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "table=%s total_rows=%d\n", cfg.Storage.DB.Table, res.Total)
			for _, h := range res.Sample {
				fmt.Fprintf(out, "hour=%02d avg_fare=%.2f\n", h.Hour, h.Avg)
			}
			return nil
		},
	}
}
