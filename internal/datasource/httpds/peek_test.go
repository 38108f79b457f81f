package httpds

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// FetchFirstBytes never returns more than n bytes, even when the server
// ignores Range and sends the full body.
func TestFetchFirstBytes_LimitsToN(t *testing.T) {
	t.Parallel()

	const body = "VendorID,lpep_pickup_datetime\n2,2021-01-01 00:15:56\n"
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	c := NewClient(Config{Timeout: 2 * time.Second})
	got, err := c.FetchFirstBytes(context.Background(), srv.URL, 8, nil)
	if err != nil {
		t.Fatalf("FetchFirstBytes: %v", err)
	}
	if string(got) != body[:8] {
		t.Fatalf("got %q, want %q", got, body[:8])
	}
	if gotRange != "bytes=0-7" {
		t.Fatalf("Range = %q, want bytes=0-7", gotRange)
	}
}

func TestFetchFirstBytes_InvalidN(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{}).FetchFirstBytes(context.Background(), "http://x", 0, nil); err == nil {
		t.Fatal("expected error for n=0")
	}
}

func TestSource_OpenStreamsBodyWithUserAgent(t *testing.T) {
	t.Parallel()

	const body = "a,b\n1,2\n"
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	src := NewSource(NewClient(Config{Timeout: 2 * time.Second}), srv.URL, "tripetl-test/1")
	rc, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != body {
		t.Fatalf("body = %q", b)
	}
	if ua != "tripetl-test/1" {
		t.Fatalf("User-Agent = %q", ua)
	}
}

func TestSource_OpenNon2xxIsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	src := NewSource(NewClient(Config{Timeout: 2 * time.Second}), srv.URL, "")
	_, err := src.Open(context.Background())

	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusForbidden {
		t.Fatalf("expected *StatusError 403, got %v", err)
	}
}
