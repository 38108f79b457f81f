package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// Decoding tests
// -----------------------------------------------------------------------------
//
// These tests validate that JSON and YAML pipeline files decode into the
// intended Go struct graph and overlay (not replace) the built-in defaults.

func TestLoad_JSONOverlaysDefaults(t *testing.T) {
	t.Parallel()

	const js = `{
	  "job": "green_2021_01",
	  "source": { "url": "https://example.org/green.csv", "user_agent": "ua/2" },
	  "parser": { "comma": ";", "time_layouts": ["02.01.2006 15:04"] },
	  "storage": { "kind": "postgres", "db": { "dsn": "postgres://u:p@h/db", "table": "public.trips" } },
	  "runtime": { "chunk_size": 1000, "io_timeout": "90s" }
	}`

	path := filepath.Join(t.TempDir(), "pipeline.json")
	if err := os.WriteFile(path, []byte(js), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if p.Job != "green_2021_01" {
		t.Fatalf("job = %q", p.Job)
	}
	if p.Source.Locator != "https://example.org/green.csv" || p.Source.UserAgent != "ua/2" {
		t.Fatalf("source = %#v", p.Source)
	}
	if got := p.Parser.CommaRune(); got != ';' {
		t.Fatalf("comma = %q, want ';'", got)
	}
	if p.Storage.Kind != "postgres" || p.Storage.DB.Table != "public.trips" {
		t.Fatalf("storage = %#v", p.Storage)
	}
	if p.Runtime.ChunkSize != 1000 {
		t.Fatalf("chunk_size = %d, want 1000", p.Runtime.ChunkSize)
	}
	// batch_size was not in the file: the default must survive.
	if p.Runtime.BatchSize != DefaultBatchSize {
		t.Fatalf("batch_size = %d, want default %d", p.Runtime.BatchSize, DefaultBatchSize)
	}
	if p.Runtime.IOTimeout.Std() != 90*time.Second {
		t.Fatalf("io_timeout = %v, want 90s", p.Runtime.IOTimeout)
	}
	// HTTP retries come from defaults.
	if p.Source.HTTP.MaxRetries != 3 {
		t.Fatalf("http.max_retries = %d, want 3", p.Source.HTTP.MaxRetries)
	}
}

func TestLoad_YAML(t *testing.T) {
	t.Parallel()

	const doc = `
job: yaml_job
source:
  file: /data/trips.csv
  skip_download: true
storage:
  kind: sqlite
  db:
    name: trips.db
    table: trips_raw
runtime:
  batch_size: 250
  io_timeout: 30
`
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !p.Source.SkipDownload || p.Source.LocalFile != "/data/trips.csv" {
		t.Fatalf("source = %#v", p.Source)
	}
	if p.Runtime.BatchSize != 250 || p.Runtime.ChunkSize != DefaultChunkSize {
		t.Fatalf("runtime = %#v", p.Runtime)
	}
	if p.Runtime.IOTimeout.Std() != 30*time.Second {
		t.Fatalf("io_timeout = %v, want 30s", p.Runtime.IOTimeout)
	}
	dsn, err := p.ResolveDSN()
	if err != nil || dsn != "trips.db" {
		t.Fatalf("ResolveDSN = %q, %v; want trips.db", dsn, err)
	}
}

func TestLoad_UnknownJSONFieldRejected(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"sauce": {}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	t.Parallel()

	p, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Runtime.ChunkSize != 20000 || p.Runtime.BatchSize != 5000 {
		t.Fatalf("defaults = %#v", p.Runtime)
	}
	if p.Storage.DB.Table != "trips_raw" {
		t.Fatalf("default table = %q", p.Storage.DB.Table)
	}
}

// -----------------------------------------------------------------------------
// Environment overlay
// -----------------------------------------------------------------------------

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"TRIPETL_SOURCE":     "ftp://ftp.example.org/trips.csv",
		"TRIPETL_CHUNK_SIZE": "123",
		"TRIPETL_BATCH_SIZE": "not-a-number",
		"TRIPETL_IO_TIMEOUT": "5s",
		"DB_HOST":            "db.internal",
		"DB_PORT":            "3307",
		"DB_USER":            "loader",
		"DB_PASS":            "s3cret",
		"DB_NAME":            "nyc_taxi",
	}
	getenv := func(k string) string { return env[k] }

	p := Default()
	ApplyEnv(&p, getenv)

	if p.Source.Locator != env["TRIPETL_SOURCE"] {
		t.Fatalf("locator = %q", p.Source.Locator)
	}
	if p.Runtime.ChunkSize != 123 {
		t.Fatalf("chunk_size = %d, want 123", p.Runtime.ChunkSize)
	}
	if p.Runtime.BatchSize != DefaultBatchSize {
		t.Fatalf("invalid env must keep default, got %d", p.Runtime.BatchSize)
	}
	if p.Runtime.IOTimeout.Std() != 5*time.Second {
		t.Fatalf("io_timeout = %v", p.Runtime.IOTimeout)
	}

	dsn, err := p.ResolveDSN()
	if err != nil {
		t.Fatalf("ResolveDSN: %v", err)
	}
	for _, want := range []string{"loader:s3cret@", "tcp(db.internal:3307)", "/nyc_taxi", "parseTime=true"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("mysql dsn %q missing %q", dsn, want)
		}
	}
}

func TestResolveDSN_Backends(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind string
		want string
	}{
		{"postgres", "postgres://u:p@h:5432/db"},
		{"mssql", "sqlserver://u:p@h:1433?database=db"},
	}
	for _, tc := range cases {
		p := Default()
		p.Storage.Kind = tc.kind
		p.Storage.DB = DBConfig{Host: "h", User: "u", Password: "p", Name: "db", Table: "t"}
		got, err := p.ResolveDSN()
		if err != nil {
			t.Fatalf("%s: ResolveDSN: %v", tc.kind, err)
		}
		if got != tc.want {
			t.Fatalf("%s: dsn = %q, want %q", tc.kind, got, tc.want)
		}
	}

	p := Default()
	p.Storage.DB.DSN = "explicit"
	if got, _ := p.ResolveDSN(); got != "explicit" {
		t.Fatalf("explicit DSN should win, got %q", got)
	}
}

func TestLoadDotEnv_MissingFileIgnored(t *testing.T) {
	t.Parallel()

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
}
