// Package mysql implements a MySQL repository on go-sql-driver/mysql. Each
// CopyFrom call issues multi-row INSERT statements inside one transaction.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"tripetl/internal/storage"
)

// maxPlaceholders is the server's prepared statement parameter limit.
const maxPlaceholders = 65535

// Config holds MySQL repository configuration.
type Config struct {
	DSN   string // go-sql-driver DSN, e.g. user:pass@tcp(host:3306)/db
	Table string // optionally database-qualified, e.g. "nyc.trips"
}

// Repository is a MySQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository parses the DSN, forces parseTime so DATETIME columns scan
// into time.Time, pings the server and returns a Close function.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, nil, fmt.Errorf("mysql: table must not be empty")
	}
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql dsn: %w", err)
	}
	mc.ParseTime = true
	if mc.Loc == nil {
		mc.Loc = time.UTC
	}

	conn, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(conn)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("mysql: ping: %w", err)
	}
	close := func() { _ = db.Close() }
	return &Repository{db: db, cfg: cfg}, close, nil
}

// CopyFrom inserts rows with multi-row INSERT statements in one transaction.
// Rows are split into statements that stay under the placeholder limit.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("mysql: CopyFrom: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mysql: begin tx: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	per := rowsPerStatement(len(columns))
	var inserted int64
	for from := 0; from < len(rows); from += per {
		to := min(from+per, len(rows))
		q, args, err := buildInsert(r.cfg.Table, columns, rows[from:to])
		if err != nil {
			rollback()
			return 0, err
		}
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			rollback()
			return 0, fmt.Errorf("mysql: insert rows %d-%d: %w", from, to, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			rollback()
			return 0, fmt.Errorf("mysql: rows affected: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mysql: commit: %w", err)
	}
	return inserted, nil
}

// Count returns the table's row count.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+myFQN(r.cfg.Table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("mysql: count: %w", err)
	}
	return n, nil
}

// AvgByHour implements storage.Repository.
func (r *Repository) AvgByHour(ctx context.Context, timeCol, valueCol string, limit int) ([]storage.HourAvg, error) {
	rows, err := r.db.QueryContext(ctx, avgByHourSQL(r.cfg.Table, timeCol, valueCol), limit)
	if err != nil {
		return nil, fmt.Errorf("mysql: avg by hour: %w", err)
	}
	defer rows.Close()

	var out []storage.HourAvg
	for rows.Next() {
		var h storage.HourAvg
		if err := rows.Scan(&h.Hour, &h.Avg); err != nil {
			return nil, fmt.Errorf("mysql: avg by hour scan: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func avgByHourSQL(table, timeCol, valueCol string) string {
	t, v := myIdent(timeCol), myIdent(valueCol)
	return fmt.Sprintf(
		"SELECT HOUR(%[1]s) AS hr, AVG(%[2]s)\nFROM %[3]s\nWHERE %[1]s IS NOT NULL\nGROUP BY hr\nHAVING AVG(%[2]s) IS NOT NULL\nORDER BY hr\nLIMIT ?",
		t, v, myFQN(table))
}

// Columns lists the table's columns from information_schema. An unqualified
// table resolves against the connection's current database.
func (r *Repository) Columns(ctx context.Context) ([]string, error) {
	schema, table := splitSchema(r.cfg.Table)
	rows, err := r.db.QueryContext(ctx, `SELECT COLUMN_NAME
FROM information_schema.COLUMNS
WHERE TABLE_SCHEMA = COALESCE(?, DATABASE()) AND TABLE_NAME = ?
ORDER BY ORDINAL_POSITION`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("mysql: columns: %w", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("mysql: columns scan: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mysql: columns: %w", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("mysql: table %s not found", r.cfg.Table)
	}
	return cols, nil
}

// buildInsert renders one multi-row INSERT and its flattened arguments.
func buildInsert(table string, columns []string, rows [][]any) (string, []any, error) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(myFQN(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(mapIdent(columns), ", "))
	b.WriteString(") VALUES ")

	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("mysql: CopyFrom: row length %d != columns length %d", len(row), len(columns))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
		args = append(args, row...)
	}
	return b.String(), args, nil
}

func rowsPerStatement(ncols int) int {
	n := maxPlaceholders / ncols
	if n < 1 {
		return 1
	}
	return n
}

// splitSchema returns the database and table parts; the database is NULL
// when absent.
func splitSchema(name string) (sql.NullString, string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return sql.NullString{String: name[:i], Valid: true}, name[i+1:]
	}
	return sql.NullString{}, name
}

// myIdent backtick-quotes an identifier, doubling embedded backticks.
func myIdent(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

// myFQN quotes a possibly database-qualified name like "nyc.trips" to
// `nyc`.`trips`.
func myFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = myIdent(p)
	}
	return strings.Join(parts, ".")
}

// mapIdent maps a list of column names to their quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = myIdent(c)
	}
	return out
}
