package safety

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"path"
	"strings"
)

// ErrBodyTooLarge indicates a stream exceeded the configured read limit.
var ErrBodyTooLarge = errors.New("response body too large")

// ReadAllWithLimit reads from r and fails if content exceeds limit bytes.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("invalid read limit: %d", limit)
	}
	lr := io.LimitReader(r, limit+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrBodyTooLarge
	}
	return data, nil
}

// LimitWriter is an io.Writer that fails with ErrBodyTooLarge once more
// than Limit bytes have been written to W.
type LimitWriter struct {
	W       io.Writer
	Limit   int64
	written int64
}

func (lw *LimitWriter) Write(p []byte) (int, error) {
	if lw.written+int64(len(p)) > lw.Limit {
		return 0, ErrBodyTooLarge
	}
	n, err := lw.W.Write(p)
	lw.written += int64(n)
	return n, err
}

// ValidateHTTPURL ensures the URL parses as HTTP(S) and contains no userinfo.
func ValidateHTTPURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("URL host is required")
	}
	if u.User != nil {
		return nil, fmt.Errorf("URL userinfo is not allowed")
	}
	return u, nil
}

// IsLoopbackHost reports whether the URL host is localhost/loopback.
func IsLoopbackHost(u *url.URL) bool {
	host := u.Hostname()
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// URLBaseName returns the last segment of the URL path, suitable as a
// local file name. Query and fragment are ignored.
func URLBaseName(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("URL %q has no file name", raw)
	}
	if _, err := CleanRelativePath(name); err != nil {
		return "", err
	}
	return name, nil
}
