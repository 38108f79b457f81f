// Package mssql implements a Microsoft SQL Server repository using the
// go-mssqldb bulk copy API. Each CopyFrom call bulk-inserts into the target
// table inside its own transaction.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"tripetl/internal/storage"
)

// Config holds MSSQL repository configuration.
type Config struct {
	DSN   string
	Table string // e.g. "dbo.trips"
}

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, nil, fmt.Errorf("mssql: table must not be empty")
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	close := func() { _ = db.Close() }
	return &Repository{db: db, cfg: cfg}, close, nil
}

// CopyFrom performs a bulk insert directly into the configured target table.
// The bulk copy runs inside a transaction, so a failing row commits nothing.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("mssql: CopyFrom: columns must not be empty")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(r.cfg.Table, mssql.BulkOptions{}, columns...))
	if err != nil {
		rollback()
		return 0, fmt.Errorf("prepare bulk: %w", err)
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			rollback()
			return 0, fmt.Errorf("bulk row %d: %w", i, err)
		}
	}
	res, err := stmt.ExecContext(ctx) // flush
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		rollback()
		return 0, fmt.Errorf("bulk finalize: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		rollback()
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Count returns the table's row count.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT_BIG(*) FROM "+msFQN(r.cfg.Table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// AvgByHour implements storage.Repository.
func (r *Repository) AvgByHour(ctx context.Context, timeCol, valueCol string, limit int) ([]storage.HourAvg, error) {
	rows, err := r.db.QueryContext(ctx, avgByHourSQL(r.cfg.Table, timeCol, valueCol), limit)
	if err != nil {
		return nil, fmt.Errorf("avg by hour: %w", err)
	}
	defer rows.Close()

	var out []storage.HourAvg
	for rows.Next() {
		var h storage.HourAvg
		if err := rows.Scan(&h.Hour, &h.Avg); err != nil {
			return nil, fmt.Errorf("avg by hour scan: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func avgByHourSQL(table, timeCol, valueCol string) string {
	t, v := msIdent(timeCol), msIdent(valueCol)
	return fmt.Sprintf(
		`SELECT TOP (@p1) DATEPART(hour, %[1]s) AS hr, AVG(CAST(%[2]s AS float)) AS avg_value
FROM %[3]s
WHERE %[1]s IS NOT NULL
GROUP BY DATEPART(hour, %[1]s)
HAVING AVG(CAST(%[2]s AS float)) IS NOT NULL
ORDER BY hr`, t, v, msFQN(table))
}

// Columns lists the table's columns from INFORMATION_SCHEMA. An unqualified
// table resolves against the caller's default schema.
func (r *Repository) Columns(ctx context.Context) ([]string, error) {
	schema, table := splitSchema(r.cfg.Table)
	rows, err := r.db.QueryContext(ctx, `SELECT COLUMN_NAME
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = COALESCE(@p1, SCHEMA_NAME()) AND TABLE_NAME = @p2
ORDER BY ORDINAL_POSITION`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("columns scan: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s not found", r.cfg.Table)
	}
	return cols, nil
}

// splitSchema returns the schema and table parts of a one-, two- or
// three-part name; the schema is invalid (NULL) when absent.
func splitSchema(name string) (sql.NullString, string) {
	parts := strings.Split(name, ".")
	table := parts[len(parts)-1]
	if len(parts) < 2 {
		return sql.NullString{}, table
	}
	return sql.NullString{String: parts[len(parts)-2], Valid: true}, table
}

// msIdent safely quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// msFQN quotes a possibly schema-qualified name like "dbo.trips" to
// "[dbo].[trips]". If no dot is present, returns a single quoted ident.
func msFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = msIdent(p)
	}
	return strings.Join(parts, ".")
}
