// Package ftpds retrieves trip data from an FTP server.
package ftpds

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

const defaultDialTimeout = 30 * time.Second

// Source retrieves one remote file. The locator form is
// ftp://[user[:pass]@]host[:port]/path/to/file.csv; anonymous login is used
// when no user is given.
type Source struct {
	addr     string
	user     string
	password string
	path     string
	timeout  time.Duration
}

// New parses an ftp:// URL into a Source. dialTimeout <= 0 uses 30s.
func New(u *url.URL, dialTimeout time.Duration) (*Source, error) {
	if u == nil || !strings.EqualFold(u.Scheme, "ftp") {
		return nil, fmt.Errorf("ftpds: expected ftp:// locator")
	}
	if u.Host == "" {
		return nil, fmt.Errorf("ftpds: missing host in %q", u.Redacted())
	}
	p := u.Path
	if p == "" || p == "/" {
		return nil, fmt.Errorf("ftpds: missing file path in %q", u.Redacted())
	}

	host, port := u.Hostname(), u.Port()
	if port == "" {
		port = "21"
	}

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			pass = pw
		}
	}
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}

	return &Source{
		addr:     net.JoinHostPort(host, port),
		user:     user,
		password: pass,
		path:     p,
		timeout:  dialTimeout,
	}, nil
}

// Addr returns host:port.
func (s *Source) Addr() string { return s.addr }

// Path returns the remote file path.
func (s *Source) Path() string { return s.path }

// Open dials, logs in and starts a RETR. Closing the returned reader closes
// the data connection and then quits the control session.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	conn, err := ftp.Dial(s.addr,
		ftp.DialWithTimeout(s.timeout),
		ftp.DialWithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to FTP server %s: %w", s.addr, err)
	}

	if err := conn.Login(s.user, s.password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("failed to login to FTP server %s: %w", s.addr, err)
	}

	resp, err := conn.Retr(s.path)
	if err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("failed to retrieve %s: %w", s.path, err)
	}
	return &retrReader{resp: resp, conn: conn}, nil
}

type retrReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *retrReader) Read(p []byte) (int, error) { return r.resp.Read(p) }

func (r *retrReader) Close() error {
	err := r.resp.Close()
	if qerr := r.conn.Quit(); err == nil {
		err = qerr
	}
	return err
}
