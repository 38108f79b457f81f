// Package verify runs the advisory post-load checks: total row count and the
// average fare by pickup hour.
package verify

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"tripetl/internal/schema"
	"tripetl/internal/storage"
)

// DefaultSampleSize is the number of hour groups returned by default.
const DefaultSampleSize = 5

// Query names reported in VerificationError.
const (
	QueryCount     = "count"
	QueryAvgByHour = "avg_by_hour"
)

// VerificationError wraps a failed verification query.
type VerificationError struct {
	Query string
	Err   error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verify %s: %v", e.Query, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// Result is the outcome of one verification pass.
type Result struct {
	Total  int64
	Sample []storage.HourAvg // ascending by hour, at most SampleSize entries
}

// Reader is the read-only part of storage.Repository the verifier needs.
type Reader interface {
	Count(ctx context.Context) (int64, error)
	AvgByHour(ctx context.Context, timeCol, valueCol string, limit int) ([]storage.HourAvg, error)
}

// Verifier queries the destination table after a load. Zero fields take
// defaults: pickup_datetime, fare_amount, DefaultSampleSize and no timeout.
type Verifier struct {
	Repo        Reader
	TimeColumn  string
	ValueColumn string
	SampleSize  int
	Timeout     time.Duration // per query; 0 disables
}

// Run issues both queries concurrently. Either failure cancels the other
// and is returned as a *VerificationError.
func (v *Verifier) Run(ctx context.Context) (Result, error) {
	timeCol := orDefault(v.TimeColumn, schema.PickupDatetime)
	valueCol := orDefault(v.ValueColumn, schema.FareAmount)
	limit := v.SampleSize
	if limit <= 0 {
		limit = DefaultSampleSize
	}

	var res Result
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		qctx, cancel := v.queryContext(gctx)
		defer cancel()
		n, err := v.Repo.Count(qctx)
		if err != nil {
			return &VerificationError{Query: QueryCount, Err: err}
		}
		res.Total = n
		return nil
	})
	g.Go(func() error {
		qctx, cancel := v.queryContext(gctx)
		defer cancel()
		sample, err := v.Repo.AvgByHour(qctx, timeCol, valueCol, limit)
		if err != nil {
			return &VerificationError{Query: QueryAvgByHour, Err: err}
		}
		if len(sample) > limit {
			sample = sample[:limit]
		}
		res.Sample = sample
		return nil
	})

	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (v *Verifier) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if v.Timeout > 0 {
		return context.WithTimeout(ctx, v.Timeout)
	}
	return context.WithCancel(ctx)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
