// Package postgres implements a Postgres repository using pgx v5. Each
// CopyFrom call runs the COPY protocol inside its own transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tripetl/internal/storage"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN   string // connection string for pgxpool
	Table string // optionally schema-qualified target table, e.g. "public.trips"
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, nil, fmt.Errorf("postgres: table must not be empty")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres: ping: %w", err)
	}
	close := func() { pool.Close() }
	return &Repository{pool: pool, cfg: cfg}, close, nil
}

// CopyFrom streams rows with COPY inside a transaction; any failure rolls
// the whole call back.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("postgres: CopyFrom: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	n, err := tx.CopyFrom(ctx, splitFQN(r.cfg.Table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return 0, fmt.Errorf("postgres: copy: %s (%s): %w", pgErr.Detail, pgErr.SQLState(), err)
		}
		return 0, fmt.Errorf("postgres: copy: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit: %w", err)
	}
	return n, nil
}

// Count returns the table's row count.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+pgFQN(r.cfg.Table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count: %w", err)
	}
	return n, nil
}

// AvgByHour implements storage.Repository.
func (r *Repository) AvgByHour(ctx context.Context, timeCol, valueCol string, limit int) ([]storage.HourAvg, error) {
	rows, err := r.pool.Query(ctx, avgByHourSQL(r.cfg.Table, timeCol, valueCol), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: avg by hour: %w", err)
	}
	defer rows.Close()

	var out []storage.HourAvg
	for rows.Next() {
		var h storage.HourAvg
		if err := rows.Scan(&h.Hour, &h.Avg); err != nil {
			return nil, fmt.Errorf("postgres: avg by hour scan: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func avgByHourSQL(table, timeCol, valueCol string) string {
	t, v := pgIdent(timeCol), pgIdent(valueCol)
	return fmt.Sprintf(
		`SELECT EXTRACT(HOUR FROM %[1]s)::int AS hr, AVG(%[2]s)::float8
FROM %[3]s
WHERE %[1]s IS NOT NULL
GROUP BY hr
HAVING AVG(%[2]s) IS NOT NULL
ORDER BY hr
LIMIT $1`, t, v, pgFQN(table))
}

// Columns lists the table's columns from information_schema. An unqualified
// table resolves against current_schema().
func (r *Repository) Columns(ctx context.Context) ([]string, error) {
	id := splitFQN(r.cfg.Table)
	if len(id) == 0 {
		return nil, fmt.Errorf("postgres: invalid table name %q", r.cfg.Table)
	}
	var schema *string
	table := id[len(id)-1]
	if len(id) > 1 {
		schema = &id[len(id)-2]
	}

	rows, err := r.pool.Query(ctx, `SELECT column_name
FROM information_schema.columns
WHERE table_schema = COALESCE($1::text, current_schema()) AND table_name = $2
ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("postgres: columns: %w", err)
	}
	cols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: columns: %w", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("postgres: table %s not found", r.cfg.Table)
	}
	return cols, nil
}

// pgIdent safely quotes a single identifier segment for Postgres.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN quotes a possibly schema-qualified name like "public.trips" to
// "public"."trips". If no dot is present, returns a single quoted ident.
func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}

// splitFQN converts "schema.table" into a pgx.Identifier {"schema","table"}.
// If no dot is present, returns {"table"}.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}
