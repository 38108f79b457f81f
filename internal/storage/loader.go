// This file implements the sub-batch loader: a chunk's rows are split into
// contiguous sub-batches and each one is handed to a backend's bulk insert
// (CopyFn) as its own transaction.
//
// Logging: a failed sub-batch always logs one line with its row range; with
// Verbose set every successful flush logs running totals and rows/sec.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"
)

// DefaultBatchSize is used when Loader.BatchSize is not positive.
const DefaultBatchSize = 5000

// CopyFn abstracts a backend's bulk insert capability. Implementations insert
// the provided rows (aligned to 'columns' order) atomically and return the
// number of rows committed, which is 0 whenever err != nil.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// InsertError reports a failed sub-batch. From and To are 0-based row
// offsets inside the chunk, To exclusive.
type InsertError struct {
	Chunk int
	From  int
	To    int
	Err   error
}

func (e *InsertError) Error() string {
	return fmt.Sprintf("insert chunk=%d rows=[%d,%d): %v", e.Chunk, e.From, e.To, e.Err)
}

func (e *InsertError) Unwrap() error { return e.Err }

// Rows is the size of the failed sub-batch.
func (e *InsertError) Rows() int { return e.To - e.From }

// LoadResult is the outcome of loading one chunk.
type LoadResult struct {
	Inserted      int64
	Batches       int
	FailedBatches int
	FailedRows    int
	Elapsed       time.Duration
}

// Loader drives a CopyFn over sub-batches. The zero value is not usable; Copy
// must be set.
type Loader struct {
	Copy      CopyFn
	BatchSize int
	Timeout   time.Duration // per CopyFn call; 0 disables
	Now       func() time.Time
	OnError   func(*InsertError)
	Verbose   bool

	batches int64
	total   int64
}

// Load inserts rows as contiguous sub-batches of BatchSize. A failing
// sub-batch is logged, counted in FailedRows and skipped; the next one is
// still attempted. The only error returned is a context cancellation, in
// which case the result covers the sub-batches finished so far.
func (l *Loader) Load(ctx context.Context, chunk int, columns []string, rows [][]any) (LoadResult, error) {
	if l.Copy == nil {
		return LoadResult{}, errors.New("storage: loader has no copy function")
	}
	now := l.Now
	if now == nil {
		now = time.Now
	}
	size := l.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	var res LoadResult
	start := now()

	for from := 0; from < len(rows); from += size {
		if err := ctx.Err(); err != nil {
			res.Elapsed = now().Sub(start)
			return res, err
		}
		to := min(from+size, len(rows))

		flushStart := now()
		n, err := l.copyOne(ctx, columns, rows[from:to])
		res.Batches++

		if err != nil {
			if ctx.Err() != nil {
				res.Elapsed = now().Sub(start)
				return res, ctx.Err()
			}
			ie := &InsertError{Chunk: chunk, From: from, To: to, Err: err}
			res.FailedBatches++
			res.FailedRows += ie.Rows()
			log.Printf("loader: sub-batch failed chunk=%d rows=%d-%d err=%v", chunk, from, to, err)
			if l.OnError != nil {
				l.OnError(ie)
			}
			continue
		}

		res.Inserted += n
		l.batches++
		l.total += n
		if l.Verbose {
			since := now().Sub(flushStart)
			rps := float64(0)
			if since > 0 {
				rps = float64(n) / since.Seconds()
			}
			log.Printf(
				"batch #%d: chunk=%d rps=%.0f inserted=%d total_inserted=%d since_last=%s",
				l.batches, chunk, rps, n, l.total, since.Truncate(time.Millisecond),
			)
		}
	}
	res.Elapsed = now().Sub(start)
	return res, nil
}

func (l *Loader) copyOne(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}
	n, err := l.Copy(ctx, columns, rows)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// LoadMetrics is the per-chunk record behind the progress line.
type LoadMetrics struct {
	Chunk         int
	Read          int
	Skipped       int
	Ragged        int
	Cleaned       int
	Inserted      int64
	FailedBatches int
	FailedRows    int
	Elapsed       time.Duration // whole chunk: read, clean and load
	LoadElapsed   time.Duration // sub-batch inserts only
	MemBytes      uint64
}

// Throughput is inserted rows per second; +Inf when Elapsed is zero.
func (m LoadMetrics) Throughput() float64 {
	s := m.Elapsed.Seconds()
	if s <= 0 {
		return math.Inf(1)
	}
	return float64(m.Inserted) / s
}
