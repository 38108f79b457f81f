package datasource

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// header is implemented by sources that can fetch a prefix without reading
// the whole payload (HTTP range requests).
type header interface {
	Head(ctx context.Context, n int) ([]byte, error)
}

// Peek returns at most n leading bytes of src. Sources supporting ranged
// reads are asked for the prefix only; others are opened and closed after n
// bytes.
func Peek(ctx context.Context, src Source, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("datasource: peek size must be > 0")
	}
	if h, ok := src.(header); ok {
		return h.Head(ctx, n)
	}
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(io.LimitReader(rc, int64(n))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
