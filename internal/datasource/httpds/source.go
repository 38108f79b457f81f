package httpds

import (
	"context"
	"io"
	"net/http"
)

// Source downloads one URL through a retrying Client.
type Source struct {
	client  *Client
	url     string
	headers http.Header
}

// NewSource binds c to url. userAgent is sent when non-empty.
func NewSource(c *Client, url, userAgent string) *Source {
	h := http.Header{}
	if userAgent != "" {
		h.Set("User-Agent", userAgent)
	}
	return &Source{client: c, url: url, headers: h}
}

// Open issues the GET and returns the streaming body. Any final status
// outside 2xx is a *StatusError.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	resp, err := s.client.Get(ctx, s.url, s.headers)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, &StatusError{URL: s.url, Code: resp.StatusCode}
	}
	return resp.Body, nil
}

// Head fetches at most n leading bytes of the resource, e.g. to inspect the
// CSV header without downloading the whole file.
func (s *Source) Head(ctx context.Context, n int) ([]byte, error) {
	return s.client.FetchFirstBytes(ctx, s.url, n, s.headers)
}
