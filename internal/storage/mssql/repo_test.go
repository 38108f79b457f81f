package mssql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"sync"
	"testing"
)

// TestCopyFromEmptyRows verifies that CopyFrom short-circuits when no rows
// are provided and does not require a live database connection.
func TestCopyFromEmptyRows(t *testing.T) {
	t.Parallel()

	r := &Repository{
		db:  nil, // must not be used in this path
		cfg: Config{Table: "dbo.t"},
	}

	got, err := r.CopyFrom(context.Background(), []string{"id", "name"}, nil)
	if err != nil {
		t.Fatalf("CopyFrom(nil...) error = %v, want nil", err)
	}
	if got != 0 {
		t.Fatalf("CopyFrom(nil...) = %d, want 0", got)
	}
}

// TestMsIdentB verifies the MSSQL identifier quoting and escaping in msIdent.
func TestMsIdentB(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "simple", in: "id", want: "[id]"},
		{name: "empty", in: "", want: "[]"},
		{name: "with space", in: "user id", want: "[user id]"},
		{name: "escape closing bracket", in: "user]id", want: "[user]]id]"},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := msIdent(tt.in)
			if got != tt.want {
				t.Fatalf("msIdent(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestMsFQNB verifies that msFQN correctly handles simple and schema-qualified
// names and applies identifier quoting to each segment.
func TestMsFQNB(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "simple table", in: "Users", want: "[Users]"},
		{name: "schema and table", in: "dbo.Users", want: "[dbo].[Users]"},
		{name: "multi schema", in: "a.b.c", want: "[a].[b].[c]"},
		{name: "with bracket", in: "dbo.user]s", want: "[dbo].[user]]s]"},
		{name: "empty", in: "", want: "[]"}, // msIdent("") -> "[]"
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := msFQN(tt.in)
			if got != tt.want {
				t.Fatalf("msFQN(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// BenchmarkMsIdent measures the cost of quoting single identifiers.
func BenchmarkMsIdent(b *testing.B) {
	ids := []string{"id", "tenant_id", "user]id", "very_long_column_name_with_suffix"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = msIdent(ids[i%len(ids)])
	}
}

// BenchmarkMsFQN measures the cost of quoting fully qualified names.
func BenchmarkMsFQN(b *testing.B) {
	names := []string{
		"dbo.Users",
		"schema.table",
		"multi.segment.name",
		"dbo.user]table",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = msFQN(names[i%len(names)])
	}
}

// --- Test driver plumbing for exercising Exec and CopyFrom without a real DB --

type errDriver struct{}

type errConn struct{}

type errTx struct{}

func (d *errDriver) Open(name string) (driver.Conn, error) {
	return &errConn{}, nil
}

// Prepare is not expected to be called in our tests; if it is, fail loudly.
func (c *errConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("unexpected Prepare call")
}

func (c *errConn) Close() error { return nil }

// Begin is required by driver.Conn; database/sql calls BeginTx when available.
func (c *errConn) Begin() (driver.Tx, error) {
	return nil, errors.New("begin (legacy) should not be called")
}

// BeginTx implements driver.ConnBeginTx and always fails, to exercise the
// error path in Repository.CopyFrom.
func (c *errConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	return nil, errors.New("begin failed")
}

// ExecContext implements driver.ExecerContext and always fails, to exercise
// the error path in Repository.Exec.
func (c *errConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	return nil, errors.New("exec failed")
}

// QueryContext implements driver.QueryerContext and always fails, to exercise
// the read paths.
func (c *errConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	return nil, errors.New("query failed")
}

func (t *errTx) Commit() error   { return nil }
func (t *errTx) Rollback() error { return nil }

var (
	testDriverOnce sync.Once
	testDriverName = "mssql_test_err"
)

// openErrDB registers and opens a test driver that fails BeginTx and ExecContext.
func openErrDB(t *testing.T) *sql.DB {
	t.Helper()

	testDriverOnce.Do(func() {
		sql.Register(testDriverName, &errDriver{})
	})
	db, err := sql.Open(testDriverName, "")
	if err != nil {
		t.Fatalf("sql.Open(%q) error = %v", testDriverName, err)
	}
	return db
}

// --- Tests ---

// TestExecPropagatesError verifies that Exec forwards errors from the underlying
// *sql.DB.ExecContext call when the driver returns an error.
// TestCopyFromBeginTxError verifies that CopyFrom surfaces errors from
// db.BeginTx before any bulk-copy logic runs.
func TestCopyFromBeginTxError(t *testing.T) {
	t.Parallel()

	db := openErrDB(t)
	r := &Repository{
		db:  db,
		cfg: Config{Table: "dbo.t"},
	}

	ctx := context.Background()
	columns := []string{"id", "name"}
	rows := [][]any{
		{1, "alice"},
		{2, "bob"},
	}

	n, err := r.CopyFrom(ctx, columns, rows)
	if err == nil {
		t.Fatalf("CopyFrom() error = nil, want non-nil when BeginTx fails")
	}
	if n != 0 {
		t.Fatalf("CopyFrom() rows = %d, want 0 on error", n)
	}
	if !strings.Contains(err.Error(), "begin tx:") {
		t.Fatalf("CopyFrom() error = %q, want it wrapped with 'begin tx:'", err.Error())
	}
}

// TestReadPathsPropagateErrors verifies Count, AvgByHour and Columns wrap the
// driver's query error.
func TestReadPathsPropagateErrors(t *testing.T) {
	t.Parallel()

	r := &Repository{db: openErrDB(t), cfg: Config{Table: "dbo.trips"}}
	ctx := context.Background()

	if _, err := r.Count(ctx); err == nil || !strings.Contains(err.Error(), "count: query failed") {
		t.Errorf("Count() error = %v", err)
	}
	if _, err := r.AvgByHour(ctx, "pickup_datetime", "fare_amount", 5); err == nil || !strings.Contains(err.Error(), "avg by hour: query failed") {
		t.Errorf("AvgByHour() error = %v", err)
	}
	if _, err := r.Columns(ctx); err == nil || !strings.Contains(err.Error(), "columns: query failed") {
		t.Errorf("Columns() error = %v", err)
	}
}

func TestAvgByHourSQL(t *testing.T) {
	t.Parallel()

	q := avgByHourSQL("dbo.trips", "pickup_datetime", "fare_amount")
	for _, want := range []string{
		"SELECT TOP (@p1) DATEPART(hour, [pickup_datetime]) AS hr",
		"AVG(CAST([fare_amount] AS float))",
		"FROM [dbo].[trips]",
		"WHERE [pickup_datetime] IS NOT NULL",
		"ORDER BY hr",
	} {
		if !strings.Contains(q, want) {
			t.Errorf("query missing %q:\n%s", want, q)
		}
	}
}

func TestSplitSchema(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in        string
		schema    string
		hasSchema bool
		wantTable string
	}{
		{"trips", "", false, "trips"},
		{"dbo.trips", "dbo", true, "trips"},
		{"tempdb.dbo.trips", "dbo", true, "trips"},
	}
	for _, tc := range cases {
		s, tbl := splitSchema(tc.in)
		if s.Valid != tc.hasSchema || s.String != tc.schema || tbl != tc.wantTable {
			t.Errorf("splitSchema(%q) = %+v,%q", tc.in, s, tbl)
		}
	}
}
