package config

import (
	"errors"
	"io/fs"
	"log"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env") into
// the process environment. Variables already set in the environment win.
// Missing files are ignored; malformed files are reported.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ApplyEnv overlays environment variables onto p. getenv is injected so tests
// stay hermetic (pass os.Getenv in production).
//
// Recognized variables:
//
//	TRIPETL_JOB, TRIPETL_SOURCE, TRIPETL_FILE, TRIPETL_SKIP_DOWNLOAD,
//	TRIPETL_STAGING_DIR, TRIPETL_CHUNK_SIZE, TRIPETL_BATCH_SIZE,
//	TRIPETL_IO_TIMEOUT, DB_KIND, DB_DSN, DB_HOST, DB_PORT, DB_USER,
//	DB_PASS, DB_NAME, DB_TABLE, METRICS_BACKEND, PUSHGATEWAY_URL,
//	DD_AGENT_ADDR, AWS_REGION, AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY,
//	S3_ENDPOINT
func ApplyEnv(p *Pipeline, getenv func(string) string) {
	str := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(dst *int, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			} else {
				log.Printf("config: ignoring %s=%q: %v", key, v, err)
			}
		}
	}
	boolean := func(dst *bool, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			} else {
				log.Printf("config: ignoring %s=%q: %v", key, v, err)
			}
		}
	}

	str(&p.Job, "TRIPETL_JOB")
	str(&p.Source.Locator, "TRIPETL_SOURCE")
	str(&p.Source.LocalFile, "TRIPETL_FILE")
	boolean(&p.Source.SkipDownload, "TRIPETL_SKIP_DOWNLOAD")
	str(&p.Source.StagingDir, "TRIPETL_STAGING_DIR")
	num(&p.Runtime.ChunkSize, "TRIPETL_CHUNK_SIZE")
	num(&p.Runtime.BatchSize, "TRIPETL_BATCH_SIZE")
	if v := strings.TrimSpace(getenv("TRIPETL_IO_TIMEOUT")); v != "" {
		var d Duration
		if err := d.parse(v); err == nil {
			p.Runtime.IOTimeout = d
		} else {
			log.Printf("config: ignoring TRIPETL_IO_TIMEOUT=%q: %v", v, err)
		}
	}

	str(&p.Storage.Kind, "DB_KIND")
	str(&p.Storage.DB.DSN, "DB_DSN")
	str(&p.Storage.DB.Host, "DB_HOST")
	str(&p.Storage.DB.Port, "DB_PORT")
	str(&p.Storage.DB.User, "DB_USER")
	// DB_PASS may legitimately be set to an empty string; only override when set.
	if v := getenv("DB_PASS"); v != "" {
		p.Storage.DB.Password = v
	}
	str(&p.Storage.DB.Name, "DB_NAME")
	str(&p.Storage.DB.Table, "DB_TABLE")

	str(&p.Metrics.Backend, "METRICS_BACKEND")
	str(&p.Metrics.PushgatewayURL, "PUSHGATEWAY_URL")
	str(&p.Metrics.DatadogAddr, "DD_AGENT_ADDR")

	str(&p.Source.S3.Region, "AWS_REGION")
	str(&p.Source.S3.AccessKeyID, "AWS_ACCESS_KEY_ID")
	str(&p.Source.S3.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	str(&p.Source.S3.Endpoint, "S3_ENDPOINT")
}
