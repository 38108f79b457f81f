// Package pipeline wires acquisition, chunked reading, cleaning, loading and
// verification into one sequential run.
//
// Logging: one progress line per chunk, aggregated reject reasons at the end,
// then a summary line and the verification result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"tripetl/internal/config"
	"tripetl/internal/datasource"
	"tripetl/internal/datasource/s3ds"
	"tripetl/internal/metrics"
	csvparser "tripetl/internal/parser/csv"
	"tripetl/internal/schema"
	"tripetl/internal/storage"
	"tripetl/internal/sysmem"
	"tripetl/internal/transformer"
	"tripetl/internal/verify"
)

// ErrConfig marks failures caused by configuration rather than runtime
// conditions.
var ErrConfig = errors.New("configuration error")

// rejectSampleLimit caps how many reject reasons per stage are echoed in the
// final report.
const rejectSampleLimit = 10

// Summary is the outcome of one run.
type Summary struct {
	RunID           string
	Source          string
	Chunks          int
	Read            int
	Skipped         int
	Ragged          int
	Cleaned         int
	ParseDropped    int
	ValidateDropped int
	Inserted        int64
	FailedBatches   int
	FailedRows      int
	Elapsed         time.Duration

	// Verify holds the post-load check; VerifyErr is set instead when it
	// failed. Neither fails the run.
	Verify    *verify.Result
	VerifyErr error
}

// Throughput is inserted rows per second over the whole run.
func (s Summary) Throughput() float64 {
	sec := s.Elapsed.Seconds()
	if sec <= 0 {
		return math.Inf(1)
	}
	return float64(s.Inserted) / sec
}

// Runner executes a configured pipeline. The zero value plus Config is
// usable.
type Runner struct {
	Config  config.Pipeline
	Verbose bool

	// Open constructs the destination repository; storage.New by default.
	Open func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
	// Now is the clock used for timings; time.Now by default.
	Now func() time.Time
}

// Run executes cfg with default settings.
func Run(ctx context.Context, cfg config.Pipeline) (Summary, error) {
	return (&Runner{Config: cfg}).Run(ctx)
}

// Run acquires the source, streams it chunk by chunk into the destination
// table and finally verifies the table. Row-level and sub-batch failures are
// counted, not returned; the error is reserved for configuration, acquisition,
// repository, preflight and read failures plus context cancellation.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	cfg := r.Config
	now := r.clock()
	start := now()

	sum := Summary{RunID: uuid.NewString()}

	if err := checkConfig(cfg); err != nil {
		return sum, err
	}
	dsn, err := cfg.ResolveDSN()
	if err != nil {
		return sum, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	log.Printf("run: job=%s id=%s storage=%s table=%s", cfg.Job, sum.RunID, cfg.Storage.Kind, cfg.Storage.DB.Table)

	staged, err := r.stage(ctx, cfg)
	if err != nil {
		return sum, err
	}
	sum.Source = staged.Path
	defer func() {
		if !staged.Owned() {
			return
		}
		if cerr := staged.Cleanup(); cerr != nil {
			log.Printf("staging: cleanup path=%s err=%v", staged.Path, cerr)
			return
		}
		if r.Verbose {
			log.Printf("staging: removed path=%s", staged.Path)
		}
	}()

	repo, err := r.open(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: dsn, Table: cfg.Storage.DB.Table})
	if err != nil {
		return sum, fmt.Errorf("open storage: %w", err)
	}
	defer repo.Close()

	dest, err := preflight(ctx, repo, cfg)
	if err != nil {
		return sum, err
	}

	if err := r.load(ctx, cfg, staged, repo, dest, &sum); err != nil {
		sum.Elapsed = now().Sub(start)
		return sum, err
	}
	sum.Elapsed = now().Sub(start)

	log.Printf(
		"summary: chunks=%d read=%d skipped=%d ragged=%d cleaned=%d parse_dropped=%d validate_dropped=%d inserted=%d failed_batches=%d failed_rows=%d time=%.2fs rows/sec=%s peak_mem=%.1fMB",
		sum.Chunks, sum.Read, sum.Skipped, sum.Ragged, sum.Cleaned, sum.ParseDropped, sum.ValidateDropped,
		sum.Inserted, sum.FailedBatches, sum.FailedRows, sum.Elapsed.Seconds(), rate(sum.Throughput()),
		sysmem.MB(sysmem.PeakRSSBytes()),
	)

	res, verr := runVerify(ctx, cfg, repo)
	if verr != nil {
		sum.VerifyErr = verr
	} else {
		sum.Verify = &res
	}
	return sum, nil
}

// Verify runs only the post-load check against the configured table.
func Verify(ctx context.Context, cfg config.Pipeline) (verify.Result, error) {
	return (&Runner{Config: cfg}).Verify(ctx)
}

// Verify opens the configured repository and runs the verifier. Unlike Run,
// a verification failure is returned.
func (r *Runner) Verify(ctx context.Context) (verify.Result, error) {
	cfg := r.Config
	if strings.TrimSpace(cfg.Storage.Kind) == "" || strings.TrimSpace(cfg.Storage.DB.Table) == "" {
		return verify.Result{}, fmt.Errorf("%w: storage.kind and storage.db.table are required", ErrConfig)
	}
	dsn, err := cfg.ResolveDSN()
	if err != nil {
		return verify.Result{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	repo, err := r.open(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: dsn, Table: cfg.Storage.DB.Table})
	if err != nil {
		return verify.Result{}, fmt.Errorf("open storage: %w", err)
	}
	defer repo.Close()
	return runVerify(ctx, cfg, repo)
}

func checkConfig(cfg config.Pipeline) error {
	issues := config.ValidatePipeline(cfg)
	var errs []string
	for _, iss := range issues {
		if iss.Severity == config.SeverityError {
			errs = append(errs, iss.Error())
			continue
		}
		log.Printf("config: %s", iss.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrConfig, strings.Join(errs, "; "))
	}
	return nil
}

// stage returns the file to read. A configured local file overrides the
// locator and is never removed afterwards.
func (r *Runner) stage(ctx context.Context, cfg config.Pipeline) (*datasource.Staged, error) {
	job := cfg.Job
	start := r.clock()()

	if cfg.Source.SkipDownload || strings.TrimSpace(cfg.Source.LocalFile) != "" {
		st, err := datasource.UseExisting(cfg.Source.LocalFile)
		metrics.RecordStep(job, "acquire", err, r.clock()().Sub(start))
		if err != nil {
			return nil, err
		}
		log.Printf("acquire: using local file path=%s bytes=%d", st.Path, st.Bytes)
		return st, nil
	}

	src, err := datasource.FromLocator(cfg.Source.Locator, datasource.Options{
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
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	st, err := datasource.Acquire(ctx, cfg.Source.Locator, src, cfg.Source.StagingDir, cfg.Runtime.IOTimeout.Std())
	d := r.clock()().Sub(start)
	metrics.RecordStep(job, "acquire", err, d)
	if err != nil {
		return nil, err
	}
	log.Printf("acquire: staged url=%s path=%s bytes=%d xxh3=%016x time=%.2fs",
		cfg.Source.Locator, st.Path, st.Bytes, st.Digest, d.Seconds())
	return st, nil
}

// preflight confirms the destination table exists and returns its columns.
func preflight(ctx context.Context, repo storage.Repository, cfg config.Pipeline) ([]string, error) {
	pctx, cancel := withTimeout(ctx, cfg.Runtime.IOTimeout.Std())
	defer cancel()

	cols, err := repo.Columns(pctx)
	if err != nil {
		return nil, fmt.Errorf("preflight table=%s: %w", cfg.Storage.DB.Table, err)
	}
	return cols, nil
}

func (r *Runner) load(ctx context.Context, cfg config.Pipeline, staged *datasource.Staged, repo storage.Repository, dest []string, sum *Summary) error {
	job := cfg.Job
	now := r.clock()

	f, err := os.Open(staged.Path)
	if err != nil {
		return fmt.Errorf("open staged file: %w", err)
	}
	defer f.Close()
	sysmem.AdviseSequential(f)

	skipAgg := newErrAgg(rejectSampleLimit).named("csv lines skipped")
	parseAgg := newErrAgg(rejectSampleLimit).named("parse rejects")
	validateAgg := newErrAgg(rejectSampleLimit).named("validation rejects")
	insertAgg := newErrAgg(rejectSampleLimit).named("failed sub-batches")

	cr, err := csvparser.NewChunkReader(f, csvparser.Options{
		ChunkSize:  cfg.Runtime.ChunkSize,
		Comma:      cfg.Parser.CommaRune(),
		LazyQuotes: cfg.Parser.LazyQuotes,
		TrimSpace:  true,
		OnSkip: func(line int, err error) {
			skipAgg.add(skipKey(err), fmt.Sprintf("line %d: %v", line, err))
		},
	})
	if err != nil {
		return err
	}

	plan := schema.Compile(cr.Header(), dest)
	if plan.Len() == 0 {
		return fmt.Errorf("no source column maps to table %s (header=%v)", cfg.Storage.DB.Table, cr.Header())
	}
	columns := plan.Columns()
	if r.Verbose {
		log.Printf("schema: columns=%v", columns)
	}
	for _, want := range []string{schema.PickupDatetime, schema.DropoffDatetime} {
		if !plan.Has(want) {
			log.Printf("schema: warning: %s missing from source or table=%s; every row will be dropped", want, cfg.Storage.DB.Table)
		}
	}

	cleaner := transformer.NewCleaner(plan, cfg.Parser.TimeLayouts, func(rj transformer.Reject) {
		msg := fmt.Sprintf("chunk=%d lines=%d-%d row=%d: %v", rj.Chunk, rj.FirstLine, rj.LastLine, rj.Row, rj.Err)
		if rj.Stage == "validate" {
			validateAgg.add(rejectKey(rj), msg)
			return
		}
		parseAgg.add(rejectKey(rj), msg)
	})

	loader := &storage.Loader{
		Copy:      repo.CopyFrom,
		BatchSize: cfg.Runtime.BatchSize,
		Timeout:   cfg.Runtime.IOTimeout.Std(),
		Now:       now,
		Verbose:   r.Verbose,
		OnError: func(e *storage.InsertError) {
			insertAgg.add(rootCause(e).Error(), e.Error())
		},
	}

	defer logRejects(skipAgg, parseAgg, validateAgg, insertAgg)

	var totals transformer.Stats

	for {
		chunkStart := now()
		ch, err := cr.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			metrics.RecordStep(job, "chunk", err, now().Sub(chunkStart))
			return fmt.Errorf("chunk %d: %w", sum.Chunks, err)
		}

		recs, st := cleaner.Clean(&ch)
		m := storage.LoadMetrics{Chunk: ch.Index, Read: ch.Len(), Skipped: ch.Skipped, Ragged: ch.Ragged, Cleaned: st.Cleaned}

		totals.Add(st)
		sum.Chunks++
		sum.Skipped += m.Skipped
		sum.Ragged += m.Ragged
		sum.Read, sum.Cleaned = totals.Original, totals.Cleaned
		sum.ParseDropped, sum.ValidateDropped = totals.ParseDropped, totals.ValidationDropped

		metrics.RecordRow(job, metrics.KindRead, int64(m.Read))
		metrics.RecordRow(job, metrics.KindSkipped, int64(m.Skipped))
		metrics.RecordRow(job, metrics.KindCleaned, int64(st.Cleaned))
		metrics.RecordRow(job, metrics.KindParseDropped, int64(st.ParseDropped))
		metrics.RecordRow(job, metrics.KindValidateDropped, int64(st.ValidationDropped))

		if len(recs) == 0 {
			log.Printf("chunk=%d: no rows left after cleaning; skipping load", ch.Index)
		} else {
			rows := make([][]any, len(recs))
			for i, rec := range recs {
				rows[i] = plan.Row(rec)
			}
			res, lerr := loader.Load(ctx, ch.Index, columns, rows)

			m.Inserted = res.Inserted
			m.LoadElapsed = res.Elapsed
			m.FailedBatches = res.FailedBatches
			m.FailedRows = res.FailedRows
			sum.Inserted += res.Inserted
			sum.FailedBatches += res.FailedBatches
			sum.FailedRows += res.FailedRows

			metrics.RecordRow(job, metrics.KindInserted, res.Inserted)
			metrics.RecordRow(job, metrics.KindInsertFailed, int64(res.FailedRows))
			metrics.RecordBatches(job, "committed", int64(res.Batches-res.FailedBatches))
			metrics.RecordBatches(job, "failed", int64(res.FailedBatches))

			if lerr != nil {
				metrics.RecordStep(job, "chunk", lerr, now().Sub(chunkStart))
				return fmt.Errorf("chunk %d: load: %w", ch.Index, lerr)
			}
		}

		m.Elapsed = now().Sub(chunkStart)
		m.MemBytes = sysmem.RSSBytes()
		metrics.RecordStep(job, "chunk", nil, m.Elapsed)
		logProgress(m)
	}
}

func logProgress(m storage.LoadMetrics) {
	log.Printf(
		"chunk=%d read=%d skipped=%d ragged=%d cleaned=%d inserted=%d failed_batches=%d time=%.2fs load=%.2fs rows/sec=%s mem=%.1fMB",
		m.Chunk, m.Read, m.Skipped, m.Ragged, m.Cleaned, m.Inserted, m.FailedBatches,
		m.Elapsed.Seconds(), m.LoadElapsed.Seconds(), rate(m.Throughput()), sysmem.MB(m.MemBytes),
	)
}

func runVerify(ctx context.Context, cfg config.Pipeline, repo storage.Repository) (verify.Result, error) {
	start := time.Now()
	v := &verify.Verifier{
		Repo:        repo,
		TimeColumn:  schema.PickupDatetime,
		ValueColumn: schema.FareAmount,
		SampleSize:  verify.DefaultSampleSize,
		Timeout:     cfg.Runtime.IOTimeout.Std(),
	}
	res, err := v.Run(ctx)
	metrics.RecordStep(cfg.Job, "verify", err, time.Since(start))
	if err != nil {
		log.Printf("verify: warning: %v", err)
		return res, err
	}
	log.Printf("verify: table=%s total_rows=%d", cfg.Storage.DB.Table, res.Total)
	for _, h := range res.Sample {
		log.Printf("verify: hour=%02d avg_fare=%.2f", h.Hour, h.Avg)
	}
	return res, nil
}

func (r *Runner) open(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	if r.Open != nil {
		return r.Open(ctx, cfg)
	}
	return storage.New(ctx, cfg)
}

func (r *Runner) clock() func() time.Time {
	if r.Now != nil {
		return r.Now
	}
	return time.Now
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// rate formats a rows/sec figure; a chunk or run too fast to time reads
// "inf".
func rate(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsNaN(v):
		return "nan"
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}
