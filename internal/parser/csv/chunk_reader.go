// Package csv reads large delimited files as a lazy sequence of fixed-size
// row chunks. Only one chunk of rows is held in memory at a time.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"tripetl/pkg/records"
)

// DefaultChunkSize is used when Options.ChunkSize is not positive.
const DefaultChunkSize = 20000

// Options configures a ChunkReader. Zero values are usable.
type Options struct {
	// ChunkSize is the number of parsed data rows per chunk.
	ChunkSize int

	// Comma is the field delimiter; ',' when zero.
	Comma rune

	// LazyQuotes relaxes quote handling (csv.Reader.LazyQuotes).
	LazyQuotes bool

	// TrimSpace trims surrounding whitespace from every cell.
	TrimSpace bool

	// OnSkip, when set, receives each line that failed CSV parsing. Such
	// lines never count toward a chunk's row total.
	OnSkip func(line int, err error)
}

// ChunkReader yields records.Chunk values from an underlying CSV stream.
// It is forward-only and not safe for concurrent use.
type ChunkReader struct {
	cr     *csv.Reader
	opt    Options
	header []string
	index  int
	done   bool
}

// NewChunkReader reads the header row and prepares chunked iteration. An
// input with no header at all is an error; a header-only input yields io.EOF
// on the first Next.
func NewChunkReader(r io.Reader, opt Options) (*ChunkReader, error) {
	if opt.ChunkSize <= 0 {
		opt.ChunkSize = DefaultChunkSize
	}

	cr := csv.NewReader(r)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	h, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read csv header: empty input")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	header := StripHeaderBOM(append([]string(nil), h...))
	for i, v := range header {
		header[i] = strings.TrimSpace(v)
	}

	return &ChunkReader{cr: cr, opt: opt, header: header}, nil
}

// Header returns the header row as read (BOM stripped, trimmed).
func (c *ChunkReader) Header() []string { return c.header }

// Next returns the next chunk of at most ChunkSize rows, or io.EOF once the
// input is exhausted. Any non-EOF, non-parse error (I/O, ctx) is fatal.
func (c *ChunkReader) Next(ctx context.Context) (records.Chunk, error) {
	if c.done {
		return records.Chunk{}, io.EOF
	}

	capHint := c.opt.ChunkSize
	if capHint > 4096 {
		capHint = 4096
	}
	ch := records.Chunk{
		Index:  c.index,
		Header: c.header,
		Rows:   make([][]string, 0, capHint),
	}
	width := len(c.header)

	for len(ch.Rows) < c.opt.ChunkSize {
		if err := ctx.Err(); err != nil {
			return records.Chunk{}, err
		}

		rec, err := c.cr.Read()
		if errors.Is(err, io.EOF) {
			c.done = true
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return records.Chunk{}, fmt.Errorf("read csv: %w", err)
			}
			ch.Skipped++
			if c.opt.OnSkip != nil {
				c.opt.OnSkip(pe.StartLine, err)
			}
			continue
		}

		line, _ := c.cr.FieldPos(0)
		if len(ch.Rows) == 0 {
			ch.FirstLine = line
		}
		ch.LastLine = line

		if len(rec) != width {
			ch.Ragged++
		}
		row := make([]string, len(rec))
		for i, v := range rec {
			if c.opt.TrimSpace {
				v = strings.TrimSpace(v)
			}
			row[i] = v
		}
		ch.Rows = append(ch.Rows, row)
	}

	if len(ch.Rows) == 0 && ch.Skipped == 0 {
		return records.Chunk{}, io.EOF
	}
	c.index++
	return ch, nil
}
