package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
)

// copyBufSize bounds memory used while staging regardless of payload size.
const copyBufSize = 32 << 10

// AcquisitionError reports a failure to obtain or stage the source payload.
// It is always fatal for the run.
type AcquisitionError struct {
	Locator string
	Op      string // "open", "create", "copy", "sync", "stat"
	Err     error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire %s: %s: %v", e.Locator, e.Op, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// ErrStalled is returned (wrapped in an AcquisitionError) when the source
// delivers no bytes for longer than the idle timeout.
var ErrStalled = errors.New("transfer stalled")

// Staged is a payload sitting on local disk, ready for the chunk reader.
type Staged struct {
	Path   string
	Bytes  int64
	Digest uint64 // xxh3-64 of the staged bytes; zero for UseExisting

	owned bool
	once  sync.Once
}

// Owned reports whether Cleanup will remove the file.
func (s *Staged) Owned() bool { return s.owned }

// Cleanup removes the staging file when this run created it. It is safe to
// call more than once; a file that is already gone is not an error.
func (s *Staged) Cleanup() error {
	if s == nil || !s.owned {
		return nil
	}
	var err error
	s.once.Do(func() {
		if rerr := os.Remove(s.Path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = rerr
		}
	})
	return err
}

// Acquire streams src into a fresh staging file under dir (os.TempDir when
// empty). The returned Staged is owned by the caller, who must Cleanup it.
// On failure no staging file is left behind.
//
// idle > 0 aborts the copy when no bytes arrive for that long; the whole
// transfer may still take arbitrarily long while data keeps flowing.
func Acquire(ctx context.Context, locator string, src Source, dir string, idle time.Duration) (*Staged, error) {
	if dir == "" {
		dir = os.TempDir()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rc, err := src.Open(ctx)
	if err != nil {
		return nil, &AcquisitionError{Locator: locator, Op: "open", Err: err}
	}
	var closeOnce sync.Once
	closeBody := func() { closeOnce.Do(func() { _ = rc.Close() }) }
	defer closeBody()

	var body io.Reader = ctxReader{ctx: ctx, r: rc}
	if idle > 0 {
		ir := newIdleReader(body, idle, func() {
			cancel()
			closeBody()
		})
		defer ir.stop()
		body = ir
	}

	path := filepath.Join(dir, "tlc_"+uuid.NewString()+".csv")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, &AcquisitionError{Locator: locator, Op: "create", Err: err}
	}

	fail := func(op string, err error) (*Staged, error) {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, &AcquisitionError{Locator: locator, Op: op, Err: err}
	}

	h := xxh3.New()
	buf := make([]byte, copyBufSize)
	n, err := io.CopyBuffer(io.MultiWriter(f, h), body, buf)
	if err != nil {
		return fail("copy", err)
	}
	if err := f.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, &AcquisitionError{Locator: locator, Op: "close", Err: err}
	}

	return &Staged{Path: path, Bytes: n, Digest: h.Sum64(), owned: true}, nil
}

// UseExisting wraps a user-supplied local file. Cleanup never removes it.
func UseExisting(path string) (*Staged, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, &AcquisitionError{Locator: path, Op: "stat", Err: err}
	}
	if fi.IsDir() {
		return nil, &AcquisitionError{Locator: path, Op: "stat", Err: fmt.Errorf("is a directory")}
	}
	return &Staged{Path: path, Bytes: fi.Size()}, nil
}

// ctxReader aborts a long copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// idleReader fires onStall when Read has not produced bytes within idle.
// onStall must unblock a pending Read (closing the body does).
type idleReader struct {
	r     io.Reader
	idle  time.Duration
	timer *time.Timer
	fired atomic.Bool
}

func newIdleReader(r io.Reader, idle time.Duration, onStall func()) *idleReader {
	ir := &idleReader{r: r, idle: idle}
	ir.timer = time.AfterFunc(idle, func() {
		ir.fired.Store(true)
		onStall()
	})
	return ir
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if ir.fired.Load() {
		return n, fmt.Errorf("%w: no data for %s", ErrStalled, ir.idle)
	}
	if n > 0 {
		ir.timer.Reset(ir.idle)
	}
	return n, err
}

func (ir *idleReader) stop() { ir.timer.Stop() }
