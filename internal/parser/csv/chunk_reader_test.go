package csv

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func readAll(t *testing.T, cr *ChunkReader) (sizes []int, skipped, ragged int) {
	t.Helper()
	for {
		ch, err := cr.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		sizes = append(sizes, ch.Len())
		skipped += ch.Skipped
		ragged += ch.Ragged
	}
}

func TestChunkReader_SplitsIntoChunks(t *testing.T) {
	t.Parallel()

	const in = "VendorID,fare_amount\n1,1\n2,2\n3,3\n4,4\n5,5\n"
	cr, err := NewChunkReader(strings.NewReader(in), Options{ChunkSize: 2})
	if err != nil {
		t.Fatalf("NewChunkReader: %v", err)
	}

	var idx []int
	var first, last []int
	for {
		ch, err := cr.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		idx = append(idx, ch.Index)
		first = append(first, ch.FirstLine)
		last = append(last, ch.LastLine)
	}

	if got, want := idx, []int{0, 1, 2}; !equalInts(got, want) {
		t.Fatalf("indices = %v, want %v", got, want)
	}
	if got, want := first, []int{2, 4, 6}; !equalInts(got, want) {
		t.Fatalf("first lines = %v, want %v", got, want)
	}
	if got, want := last, []int{3, 5, 6}; !equalInts(got, want) {
		t.Fatalf("last lines = %v, want %v", got, want)
	}

	// Exhausted readers keep returning EOF.
	if _, err := cr.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after exhaustion, got %v", err)
	}
}

func TestChunkReader_HeaderOnlyAndEmpty(t *testing.T) {
	t.Parallel()

	cr, err := NewChunkReader(strings.NewReader("a,b,c\n"), Options{})
	if err != nil {
		t.Fatalf("NewChunkReader: %v", err)
	}
	if _, err := cr.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("header-only input: expected io.EOF, got %v", err)
	}

	if _, err := NewChunkReader(strings.NewReader(""), Options{}); err == nil {
		t.Fatal("empty input: expected header error")
	}
}

func TestChunkReader_MalformedLinesSkippedNotCounted(t *testing.T) {
	t.Parallel()

	const in = "a,b,c\n" +
		"1,2,3\n" +
		"4,x\"y,6\n" + // bare quote: unparseable
		"7,8\n" + // ragged: kept
		"9,10,11,12\n" // ragged: kept

	var skippedLines []int
	cr, err := NewChunkReader(strings.NewReader(in), Options{
		ChunkSize: 10,
		OnSkip:    func(line int, err error) { skippedLines = append(skippedLines, line) },
	})
	if err != nil {
		t.Fatalf("NewChunkReader: %v", err)
	}

	sizes, skipped, ragged := readAll(t, cr)
	if !equalInts(sizes, []int{3}) {
		t.Fatalf("chunk sizes = %v, want [3]", sizes)
	}
	if skipped != 1 || ragged != 2 {
		t.Fatalf("skipped=%d ragged=%d, want 1 and 2", skipped, ragged)
	}
	if !equalInts(skippedLines, []int{3}) {
		t.Fatalf("OnSkip lines = %v, want [3]", skippedLines)
	}
}

func TestChunkReader_HeaderBOMTrimAndComma(t *testing.T) {
	t.Parallel()

	const in = "\uFEFF VendorID ; fare_amount\n 2 ; 5.5 \n"
	cr, err := NewChunkReader(strings.NewReader(in), Options{Comma: ';', TrimSpace: true})
	if err != nil {
		t.Fatalf("NewChunkReader: %v", err)
	}
	if h := cr.Header(); h[0] != "VendorID" || h[1] != "fare_amount" {
		t.Fatalf("header = %q", h)
	}

	ch, err := cr.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ch.Header[0] != "VendorID" {
		t.Fatalf("chunk header = %q", ch.Header)
	}
	if got := ch.Rows[0]; got[0] != "2" || got[1] != "5.5" {
		t.Fatalf("row = %q", got)
	}
}

func TestChunkReader_RowsAreIndependentCopies(t *testing.T) {
	t.Parallel()

	cr, err := NewChunkReader(strings.NewReader("a\nx\ny\n"), Options{})
	if err != nil {
		t.Fatalf("NewChunkReader: %v", err)
	}
	ch, err := cr.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ch.Rows[0][0] != "x" || ch.Rows[1][0] != "y" {
		t.Fatalf("rows aliased: %q", ch.Rows)
	}
}

func TestChunkReader_ContextCanceled(t *testing.T) {
	t.Parallel()

	cr, err := NewChunkReader(strings.NewReader("a\n1\n"), Options{})
	if err != nil {
		t.Fatalf("NewChunkReader: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := cr.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestChunkReader_IOErrorIsFatal(t *testing.T) {
	t.Parallel()

	r := io.MultiReader(strings.NewReader("a,b\n1,2\n"), errReader{})
	cr, err := NewChunkReader(r, Options{})
	if err != nil {
		t.Fatalf("NewChunkReader: %v", err)
	}
	if _, err := cr.Next(context.Background()); err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("expected fatal read error, got %v", err)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
