package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tripetl/internal/config"
	"tripetl/internal/pipeline"
)

// options holds raw flag values. Only flags the user actually set override
// the file and environment layers.
type options struct {
	configPath string
	envFile    string
	verbose    bool

	url        string
	file       string
	noDownload bool
	stagingDir string

	chunkSize int
	batchSize int
	ioTimeout time.Duration

	storage string
	dsn     string
	table   string

	metricsBackend string
	pushgatewayURL string
	datadogAddr    string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "tripetl",
		Short: "Load taxi trip CSV files into a relational table",
		Long: `tripetl downloads a taxi trip CSV (http, https, ftp, s3 or a local path),
reads it in fixed-size chunks, cleans each chunk and bulk-loads the survivors
into mysql, postgres, mssql or sqlite. A short verification query runs at the end.

Configuration layers, lowest to highest: defaults, --config file (.json,
.yaml), .env and environment variables, command-line flags.

Exit Codes:
  0  - Success (verification warnings included)
  1  - Acquisition or runtime failure
  2  - Configuration error`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			log.SetOutput(cmd.ErrOrStderr())
			if opts.verbose {
				log.SetFlags(log.LstdFlags | log.Lmicroseconds)
			}
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", pipeline.ErrConfig, err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "pipeline config file (.json, .yaml)")
	pf.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded into the environment when present")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose logs")
	pf.StringVar(&opts.storage, "storage", "", "storage backend: mysql, postgres, mssql, sqlite")
	pf.StringVar(&opts.dsn, "dsn", "", "database connection string")
	pf.StringVar(&opts.table, "table", "", "destination table, optionally schema-qualified")
	pf.DurationVar(&opts.ioTimeout, "io-timeout", 0, "deadline per network round-trip (0 disables)")

	root.AddCommand(newIngestCmd(opts), newVerifyCmd(opts), newValidateCmd(opts))
	return root
}

// addSourceFlags registers flags describing where the CSV comes from.
func addSourceFlags(cmd *cobra.Command, opts *options) {
	f := cmd.Flags()
	f.StringVar(&opts.url, "url", "", "source locator: http(s)://, ftp://, s3://, file:// or a path")
	f.StringVar(&opts.file, "file", "", "existing local CSV used instead of downloading (never removed)")
	f.BoolVar(&opts.noDownload, "no-download", false, "skip acquisition and read --file")
	f.StringVar(&opts.stagingDir, "staging-dir", "", "directory for the temporary staging copy")
	f.IntVar(&opts.chunkSize, "chunksize", 0, "rows per chunk")
	f.IntVar(&opts.batchSize, "batch-size", 0, "rows per insert sub-batch")
}

// loadConfig resolves the effective configuration for cmd.
func loadConfig(cmd *cobra.Command, opts *options) (config.Pipeline, error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return config.Pipeline{}, fmt.Errorf("%w: %v", pipeline.ErrConfig, err)
	}
	p, err := config.Load(opts.configPath)
	if err != nil {
		return config.Pipeline{}, fmt.Errorf("%w: %v", pipeline.ErrConfig, err)
	}
	config.ApplyEnv(&p, os.Getenv)
	applyFlags(cmd, opts, &p)
	return p, nil
}

func applyFlags(cmd *cobra.Command, opts *options, p *config.Pipeline) {
	set := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if set("url") {
		p.Source.Locator = opts.url
	}
	if set("file") {
		p.Source.LocalFile = opts.file
	}
	if set("no-download") {
		p.Source.SkipDownload = opts.noDownload
	}
	if set("staging-dir") {
		p.Source.StagingDir = opts.stagingDir
	}
	if set("chunksize") {
		p.Runtime.ChunkSize = opts.chunkSize
	}
	if set("batch-size") {
		p.Runtime.BatchSize = opts.batchSize
	}
	if set("io-timeout") {
		p.Runtime.IOTimeout = config.Duration(opts.ioTimeout)
	}
	if set("storage") {
		p.Storage.Kind = opts.storage
	}
	if set("dsn") {
		p.Storage.DB.DSN = opts.dsn
	}
	if set("table") {
		p.Storage.DB.Table = opts.table
	}
	if set("metrics-backend") {
		p.Metrics.Backend = opts.metricsBackend
	}
	if set("pushgateway-url") {
		p.Metrics.PushgatewayURL = opts.pushgatewayURL
	}
	if set("datadog-addr") {
		p.Metrics.DatadogAddr = opts.datadogAddr
	}
}
