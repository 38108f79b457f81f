// Package datasource acquires the raw trip CSV from wherever it lives and
// stages it on local disk for the chunk reader.
package datasource

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"tripetl/internal/datasource/file"
	"tripetl/internal/datasource/ftpds"
	"tripetl/internal/datasource/httpds"
	"tripetl/internal/datasource/s3ds"
)

// Source yields the payload bytes of one dataset. Callers close the reader.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Options carries transport settings for FromLocator.
type Options struct {
	UserAgent          string
	Timeout            time.Duration
	MaxRetries         int
	InsecureSkipVerify bool
	S3                 s3ds.Config
}

// FromLocator picks a Source implementation by URL scheme. A locator without
// a scheme (or with a one-letter Windows drive "scheme") is a local path.
func FromLocator(locator string, opt Options) (Source, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, fmt.Errorf("datasource: empty locator")
	}

	u, err := url.Parse(locator)
	if err != nil || len(u.Scheme) <= 1 {
		return file.NewLocal(locator), nil
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		c := httpds.NewClient(httpds.Config{
			Timeout:               -1,
			ResponseHeaderTimeout: opt.Timeout,
			MaxRetries:            opt.MaxRetries,
			InsecureSkipVerify:    opt.InsecureSkipVerify,
		})
		return httpds.NewSource(c, locator, opt.UserAgent), nil

	case "ftp":
		return ftpds.New(u, opt.Timeout)

	case "s3":
		return s3ds.New(locator, opt.S3)

	case "file":
		p := u.Path
		if p == "" {
			p = u.Opaque
		}
		return file.NewLocal(p), nil

	default:
		return nil, fmt.Errorf("datasource: unsupported scheme %q in %q", u.Scheme, locator)
	}
}
