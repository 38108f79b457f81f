// Package config defines the configuration model for the trip ingestion
// pipeline. A Pipeline value is built once at process start (defaults → config
// file → environment → CLI flags) and then passed by value into each
// component; nothing in the program reads ambient global settings.
//
// Example (JSON, trimmed):
//
//	{
//	  "job":     "tlc_green_2021_01",
//	  "source":  { "url": "https://example.org/green_tripdata_2021-01.csv" },
//	  "storage": { "kind": "mysql", "db": { "dsn": "...", "table": "trips_raw" } },
//	  "runtime": { "chunk_size": 20000, "batch_size": 5000, "io_timeout": "2m" }
//	}
//
// YAML files with the same shape are accepted as well.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied before any file, env, or flag values.
const (
	DefaultChunkSize = 20000
	DefaultBatchSize = 5000
	DefaultTable     = "trips_raw"
	DefaultJob       = "tripetl"
	DefaultUserAgent = "tripetl/1.0"

	// DefaultURL is the TLC monthly green taxi file the tool was built around.
	DefaultURL = "https://s3.amazonaws.com/nyc-tlc/trip+data/green_tripdata_2021-01.csv"
)

// Pipeline is the top-level configuration object.
type Pipeline struct {
	// Job names the run for logs and metrics grouping.
	Job string `json:"job" yaml:"job"`

	Source  Source        `json:"source" yaml:"source"`
	Parser  Parser        `json:"parser" yaml:"parser"`
	Storage Storage       `json:"storage" yaml:"storage"`
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
	Metrics Metrics       `json:"metrics" yaml:"metrics"`
}

// Source describes where the dataset comes from and where it is staged.
type Source struct {
	// Locator is an http(s)://, ftp://, s3://, file:// URL or a plain path.
	Locator string `json:"url" yaml:"url"`

	// SkipDownload reuses LocalFile instead of acquiring Locator.
	SkipDownload bool `json:"skip_download" yaml:"skip_download"`

	// LocalFile is a pre-existing CSV used instead of downloading. It is never
	// removed by the pipeline.
	LocalFile string `json:"file" yaml:"file"`

	// StagingDir holds the temporary staging copy. Empty means os.TempDir().
	StagingDir string `json:"staging_dir" yaml:"staging_dir"`

	// UserAgent is sent with HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	HTTP HTTPSource `json:"http" yaml:"http"`
	S3   S3Source   `json:"s3" yaml:"s3"`
}

// HTTPSource tunes the retrying HTTP client.
type HTTPSource struct {
	MaxRetries         int  `json:"max_retries" yaml:"max_retries"`
	InsecureSkipVerify bool `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// S3Source carries credentials for s3:// locators. Empty keys fall back to
// anonymous access.
type S3Source struct {
	Region          string `json:"region" yaml:"region"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

// Parser configures CSV reading and timestamp parsing.
type Parser struct {
	// Comma is the field delimiter; only the first rune is used.
	Comma string `json:"comma" yaml:"comma"`

	LazyQuotes bool `json:"lazy_quotes" yaml:"lazy_quotes"`

	// TimeLayouts overrides the default pickup/drop-off layouts (Go reference
	// time format), tried in order.
	TimeLayouts []string `json:"time_layouts" yaml:"time_layouts"`
}

// CommaRune returns the delimiter rune, defaulting to ','.
func (p Parser) CommaRune() rune {
	if p.Comma == "" {
		return ','
	}
	return []rune(p.Comma)[0]
}

// Storage selects the destination backend.
type Storage struct {
	// Kind is one of "mysql", "postgres", "mssql", "sqlite".
	Kind string   `json:"kind" yaml:"kind"`
	DB   DBConfig `json:"db" yaml:"db"`
}

// DBConfig configures the destination database. When DSN is empty it is
// assembled from the discrete parts (see ResolveDSN).
type DBConfig struct {
	DSN   string `json:"dsn" yaml:"dsn"`
	Table string `json:"table" yaml:"table"`

	Host     string `json:"host" yaml:"host"`
	Port     string `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Name     string `json:"name" yaml:"name"`
}

// RuntimeConfig controls chunking, sub-batching and I/O deadlines.
type RuntimeConfig struct {
	ChunkSize int `json:"chunk_size" yaml:"chunk_size"`
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// IOTimeout bounds each network round-trip (HTTP request, sub-batch
	// insert, verification query). Zero disables the deadline.
	IOTimeout Duration `json:"io_timeout" yaml:"io_timeout"`
}

// Metrics selects an optional metrics backend.
type Metrics struct {
	// Backend is "none", "pushgateway" or "datadog".
	Backend          string   `json:"backend" yaml:"backend"`
	PushgatewayURL   string   `json:"pushgateway_url" yaml:"pushgateway_url"`
	DatadogAddr      string   `json:"datadog_addr" yaml:"datadog_addr"`
	DatadogNamespace string   `json:"datadog_namespace" yaml:"datadog_namespace"`
	DatadogTags      []string `json:"datadog_tags" yaml:"datadog_tags"`
}

// Duration is a time.Duration that decodes from "90s"-style strings in JSON
// and YAML, or from a number of seconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String implements fmt.Stringer.
func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalJSON accepts "1m30s" or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		return d.parse(s)
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// MarshalJSON renders the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!int" || node.Tag == "!!float" {
		var secs float64
		if err := node.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Default returns a Pipeline populated with built-in defaults.
func Default() Pipeline {
	return Pipeline{
		Job: DefaultJob,
		Source: Source{
			Locator:   DefaultURL,
			UserAgent: DefaultUserAgent,
			HTTP:      HTTPSource{MaxRetries: 3},
		},
		Storage: Storage{
			Kind: "mysql",
			DB:   DBConfig{Table: DefaultTable},
		},
		Runtime: RuntimeConfig{
			ChunkSize: DefaultChunkSize,
			BatchSize: DefaultBatchSize,
		},
		Metrics: Metrics{Backend: "none"},
	}
}

// Load returns Default() overlaid with the contents of path. The format is
// chosen by extension: .yaml/.yml decode as YAML, anything else as JSON.
// An empty path returns the defaults unchanged.
func Load(path string) (Pipeline, error) {
	p := Default()
	if strings.TrimSpace(path) == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read config: %w", err)
	}
	if err := Decode(b, filepath.Ext(path), &p); err != nil {
		return p, fmt.Errorf("decode config %s: %w", path, err)
	}
	return p, nil
}

// Decode overlays the encoded document onto p.
func Decode(b []byte, ext string, p *Pipeline) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, p)
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		return dec.Decode(p)
	}
}
