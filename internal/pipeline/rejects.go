package pipeline

import (
	"encoding/csv"
	"errors"
	"log"
	"sort"
	"sync"

	"tripetl/internal/transformer"
)

// maxBuckets caps the distinct reasons an errAgg tracks; further reasons
// are counted under otherBucket.
const maxBuckets = 64

const otherBucket = "(other)"

// errAgg aggregates reject reasons: a total count, the first few messages
// verbatim, and a count per reason. Reasons are position-free keys, so the
// bucket map stays small however many rows are rejected.
type errAgg struct {
	mu      sync.Mutex
	name    string
	limit   int
	count   int
	first   []string
	buckets map[string]int
}

func newErrAgg(limit int) *errAgg {
	return &errAgg{limit: limit, buckets: make(map[string]int)}
}

func (a *errAgg) named(name string) *errAgg {
	a.name = name
	return a
}

// add records one occurrence of reason key; msg is kept verbatim only while
// fewer than limit messages have been seen.
func (a *errAgg) add(key, msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.buckets[key]; !ok && len(a.buckets) >= maxBuckets {
		key = otherBucket
	}
	a.buckets[key]++
	if a.count < a.limit {
		a.first = append(a.first, msg)
	}
	a.count++
}

type bucket struct {
	key string
	n   int
}

// top returns the buckets by descending count, ties broken by key.
func (a *errAgg) top() []bucket {
	out := make([]bucket, 0, len(a.buckets))
	for k, n := range a.buckets {
		out = append(out, bucket{k, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].key < out[j].key
	})
	return out
}

// logRejects prints each non-empty aggregate: the per-reason counts, then
// the first N messages.
func logRejects(aggs ...*errAgg) {
	for _, a := range aggs {
		a.mu.Lock()
		if a.count > 0 {
			log.Printf("%s: %d distinct=%d (showing first %d)", a.name, a.count, len(a.buckets), len(a.first))
			for _, b := range a.top() {
				log.Printf("  reason=%q count=%d", b.key, b.n)
			}
			for i, s := range a.first {
				log.Printf("  #%03d: %s", i+1, s)
			}
		}
		a.mu.Unlock()
	}
}

// skipKey drops the line and column numbers from a CSV syntax error.
func skipKey(err error) string {
	var pe *csv.ParseError
	if errors.As(err, &pe) && pe.Err != nil {
		return pe.Err.Error()
	}
	return err.Error()
}

// rejectKey names a cleaning reject by stage, column and rule, never by
// the offending value.
func rejectKey(rj transformer.Reject) string {
	var pe *transformer.ParseError
	if errors.As(rj.Err, &pe) {
		if pe.Value == "" {
			return rj.Stage + " " + pe.Column + ": missing"
		}
		return rj.Stage + " " + pe.Column + ": unrecognized"
	}
	var ve *transformer.ValidationError
	if errors.As(rj.Err, &ve) {
		return rj.Stage + " " + ve.Column + ": " + ve.Rule
	}
	return rj.Stage
}

// rootCause unwraps err down to the driver error, which carries no chunk
// or row offsets.
func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
