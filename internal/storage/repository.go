// Package storage holds the backend-agnostic repository contract, the backend
// registry, and the sub-batch loader that drives a repository's bulk insert.
//
// Backends live in subpackages (postgres, mysql, mssql, sqlite) and register
// themselves from init(); import internal/storage/all to link every backend.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Repository is what the pipeline needs from a destination table.
type Repository interface {
	// CopyFrom inserts rows (aligned to columns) inside a single transaction.
	// On error nothing from this call is committed and the count is 0.
	CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error)

	// Count returns the number of rows in the destination table.
	Count(ctx context.Context) (int64, error)

	// AvgByHour groups rows by the hour of timeCol and averages valueCol,
	// ordered by hour ascending, at most limit groups. Rows with a NULL
	// timeCol are excluded and hours whose average is NULL are skipped.
	AvgByHour(ctx context.Context, timeCol, valueCol string, limit int) ([]HourAvg, error)

	// Columns lists the destination table's column names in ordinal order.
	Columns(ctx context.Context) ([]string, error)

	Close()
}

// HourAvg is one row of the verification aggregate.
type HourAvg struct {
	Hour int
	Avg  float64
}

// Config selects and configures a backend.
type Config struct {
	Kind  string // postgres | mysql | mssql | sqlite
	DSN   string
	Table string // optionally schema-qualified
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	regMu    sync.RWMutex
	registry = map[string]Factory{}
)

// Register binds kind to f. Registering the same kind twice replaces the
// previous factory.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[kind] = f
}

// New opens a repository for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	regMu.RLock()
	f, ok := registry[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %s)", cfg.Kind, strings.Join(ListKinds(), ", "))
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered kinds, sorted. The slice is a copy.
func ListKinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
