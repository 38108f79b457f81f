package storage

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func rowsN(n int) [][]any {
	out := make([][]any, n)
	for i := range out {
		out[i] = []any{i, "x"}
	}
	return out
}

// TestLoader_SplitsIntoSubBatches verifies rows are grouped into contiguous
// sub-batches and the total equals the sum of all successful copies.
func TestLoader_SplitsIntoSubBatches(t *testing.T) {
	t.Parallel()

	var sizes []int
	l := &Loader{
		BatchSize: 3,
		Copy: func(_ context.Context, _ []string, rows [][]any) (int64, error) {
			sizes = append(sizes, len(rows))
			return int64(len(rows)), nil
		},
	}

	res, err := l.Load(context.Background(), 0, []string{"c1", "c2"}, rowsN(7))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if res.Inserted != 7 || res.Batches != 3 || res.FailedBatches != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(sizes) != 3 || sizes[0] != 3 || sizes[1] != 3 || sizes[2] != 1 {
		t.Fatalf("sub-batch sizes = %v, want [3 3 1]", sizes)
	}
}

// TestLoader_FailedSubBatchContinues ensures a failing sub-batch is counted
// and reported while the following sub-batches still load.
func TestLoader_FailedSubBatchContinues(t *testing.T) {
	t.Parallel()

	boom := errors.New("check constraint")
	call := 0
	var reported []*InsertError
	l := &Loader{
		BatchSize: 2,
		Copy: func(_ context.Context, _ []string, rows [][]any) (int64, error) {
			call++
			if call == 2 {
				// Backends may report a partial count alongside the error.
				return 1, boom
			}
			return int64(len(rows)), nil
		},
		OnError: func(e *InsertError) { reported = append(reported, e) },
	}

	res, err := l.Load(context.Background(), 4, []string{"c"}, rowsN(5))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if res.Inserted != 3 {
		t.Fatalf("inserted = %d, want 3 (failed sub-batch commits nothing)", res.Inserted)
	}
	if res.FailedBatches != 1 || res.FailedRows != 2 || res.Batches != 3 {
		t.Fatalf("result = %+v", res)
	}
	if len(reported) != 1 {
		t.Fatalf("reported = %v", reported)
	}
	ie := reported[0]
	if ie.Chunk != 4 || ie.From != 2 || ie.To != 4 || !errors.Is(ie, boom) {
		t.Fatalf("InsertError = %+v", ie)
	}
	if got, want := ie.Error(), "insert chunk=4 rows=[2,4): check constraint"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestLoader_EmptyRowsNoCalls(t *testing.T) {
	t.Parallel()

	called := false
	l := &Loader{Copy: func(context.Context, []string, [][]any) (int64, error) {
		called = true
		return 0, nil
	}}
	res, err := l.Load(context.Background(), 0, nil, nil)
	if err != nil || called || res.Batches != 0 {
		t.Fatalf("res=%+v err=%v called=%v", res, err, called)
	}
}

func TestLoader_DefaultBatchSize(t *testing.T) {
	t.Parallel()

	calls := 0
	l := &Loader{Copy: func(_ context.Context, _ []string, rows [][]any) (int64, error) {
		calls++
		return int64(len(rows)), nil
	}}
	if _, err := l.Load(context.Background(), 0, []string{"c"}, rowsN(DefaultBatchSize+1)); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestLoader_NoCopyFn(t *testing.T) {
	t.Parallel()

	if _, err := (&Loader{}).Load(context.Background(), 0, nil, rowsN(1)); err == nil {
		t.Fatal("expected error for missing copy function")
	}
}

// TestLoader_PerCallTimeout checks each CopyFn call receives a deadline and a
// timed-out sub-batch is a recoverable failure, not a cancellation.
func TestLoader_PerCallTimeout(t *testing.T) {
	t.Parallel()

	l := &Loader{
		BatchSize: 1,
		Timeout:   20 * time.Millisecond,
		Copy: func(ctx context.Context, _ []string, rows [][]any) (int64, error) {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("copy context has no deadline")
			}
			if rows[0][0] == 0 {
				<-ctx.Done()
				return 0, ctx.Err()
			}
			return 1, nil
		},
	}
	res, err := l.Load(context.Background(), 0, []string{"c"}, rowsN(2))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if res.Inserted != 1 || res.FailedRows != 1 {
		t.Fatalf("result = %+v", res)
	}
}

// TestLoader_ContextCancel checks the loader stops on cancellation.
func TestLoader_ContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	l := &Loader{
		BatchSize: 1,
		Copy: func(_ context.Context, _ []string, rows [][]any) (int64, error) {
			calls++
			cancel()
			return int64(len(rows)), nil
		},
	}
	res, err := l.Load(ctx, 0, []string{"c"}, rowsN(3))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 || res.Inserted != 1 {
		t.Fatalf("calls=%d res=%+v", calls, res)
	}
}

func TestLoader_ElapsedUsesClock(t *testing.T) {
	t.Parallel()

	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	l := &Loader{
		Copy: func(_ context.Context, _ []string, rows [][]any) (int64, error) { return int64(len(rows)), nil },
		Now: func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Second)
		},
	}
	res, err := l.Load(context.Background(), 0, []string{"c"}, rowsN(1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Elapsed <= 0 {
		t.Fatalf("elapsed = %v", res.Elapsed)
	}
}

func TestLoadMetrics_Throughput(t *testing.T) {
	t.Parallel()

	m := LoadMetrics{Inserted: 500, Elapsed: 2 * time.Second}
	if got := m.Throughput(); got != 250 {
		t.Fatalf("Throughput = %v, want 250", got)
	}
	if got := (LoadMetrics{Inserted: 1}).Throughput(); !math.IsInf(got, 1) {
		t.Fatalf("zero elapsed Throughput = %v, want +Inf", got)
	}
}
