package datasource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestPeek_LocalFile(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "green.csv")
	if err := os.WriteFile(p, []byte(payload), 0o600); err != nil {
		t.Fatal(err)
	}
	src, err := FromLocator(p, Options{})
	if err != nil {
		t.Fatalf("FromLocator: %v", err)
	}
	got, err := Peek(context.Background(), src, 8)
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if string(got) != payload[:8] {
		t.Fatalf("Peek = %q, want %q", got, payload[:8])
	}
}

func TestPeek_HTTPUsesRange(t *testing.T) {
	t.Parallel()

	ranges := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ranges <- r.Header.Get("Range")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte(payload[:16]))
	}))
	defer srv.Close()

	src, err := FromLocator(srv.URL+"/green.csv", Options{})
	if err != nil {
		t.Fatalf("FromLocator: %v", err)
	}
	got, err := Peek(context.Background(), src, 16)
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if gotRange := <-ranges; gotRange != "bytes=0-15" {
		t.Fatalf("Range = %q", gotRange)
	}
	if string(got) != payload[:16] {
		t.Fatalf("Peek = %q", got)
	}
}

func TestPeek_RejectsNonPositive(t *testing.T) {
	t.Parallel()

	if _, err := Peek(context.Background(), nil, 0); err == nil {
		t.Fatal("expected error for n=0")
	}
}
