// Package sqlite implements a SQLite-backed storage.Repository using
// database/sql. It performs INSERTs through a prepared statement inside a
// transaction; SQLite has no bulk-load API like Postgres COPY, but a single
// transaction per sub-batch keeps performance acceptable.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tripetl/internal/storage"
)

// timeLayout is how time.Time values are stored; strftime() reads it back.
const timeLayout = "2006-01-02 15:04:05"

// Config holds the SQLite backend settings.
type Config struct {
	DSN   string
	Table string
}

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository opens a SQLite connection using the provided DSN and returns
// a Repository plus a Close function for cleanup.
//
// DSN is passed directly to database/sql; for example:
//
//	"file:trips.db?_pragma=busy_timeout(5000)"
//	":memory:"
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, nil, fmt.Errorf("sqlite: table must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and ":memory:"
	// databases are per-connection.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	closeFn := func() { db.Close() }
	return &Repository{db: db, cfg: cfg}, closeFn, nil
}

// CopyFrom inserts the given rows into the configured table using a single
// transaction and a prepared INSERT statement. Any failing row rolls the
// whole call back.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("sqlite: CopyFrom: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = sqIdent(c)
		placeholders[i] = "?"
	}
	stmtSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		sqFQN(r.cfg.Table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(columns))
	var inserted int64
	for _, row := range rows {
		if len(row) != len(columns) {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: CopyFrom: row length %d != columns length %d", len(row), len(columns))
		}
		for i, v := range row {
			args[i] = toSQLiteValue(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: insert: %w", err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return inserted, nil
}

// Count returns the table's row count.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	q := "SELECT COUNT(*) FROM " + sqFQN(r.cfg.Table)
	if err := r.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return n, nil
}

// AvgByHour implements storage.Repository. Values strftime cannot read as a
// date are filtered before grouping so they never take a LIMIT slot.
func (r *Repository) AvgByHour(ctx context.Context, timeCol, valueCol string, limit int) ([]storage.HourAvg, error) {
	q := fmt.Sprintf(
		`SELECT CAST(strftime('%%H', %[1]s) AS INTEGER) AS hr, AVG(%[2]s)
FROM %[3]s
WHERE strftime('%%H', %[1]s) IS NOT NULL
GROUP BY hr
HAVING AVG(%[2]s) IS NOT NULL
ORDER BY hr
LIMIT ?`,
		sqIdent(timeCol), sqIdent(valueCol), sqFQN(r.cfg.Table),
	)
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: avg by hour: %w", err)
	}
	defer rows.Close()

	var out []storage.HourAvg
	for rows.Next() {
		var h storage.HourAvg
		if err := rows.Scan(&h.Hour, &h.Avg); err != nil {
			return nil, fmt.Errorf("sqlite: avg by hour scan: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Columns lists the table's columns via pragma_table_info. A missing table
// yields an error.
func (r *Repository) Columns(ctx context.Context) ([]string, error) {
	schema, table := splitFQN(r.cfg.Table)
	var (
		rows *sql.Rows
		err  error
	)
	if schema == "" {
		rows, err = r.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	} else {
		rows, err = r.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?, ?) ORDER BY cid", table, schema)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: columns: %w", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("sqlite: columns scan: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: columns: %w", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("sqlite: table %s: %w", r.cfg.Table, errTableNotFound)
	}
	return cols, nil
}

var errTableNotFound = errors.New("table not found")

func toSQLiteValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(timeLayout)
	}
	return v
}

// sqIdent quotes a single identifier with double quotes.
func sqIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// sqFQN quotes an optionally schema-qualified table name.
func sqFQN(fqn string) string {
	schema, table := splitFQN(fqn)
	if schema == "" {
		return sqIdent(table)
	}
	return sqIdent(schema) + "." + sqIdent(table)
}

func splitFQN(fqn string) (schema, table string) {
	if i := strings.IndexByte(fqn, '.'); i >= 0 {
		return fqn[:i], fqn[i+1:]
	}
	return "", fqn
}
