package sdk

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/BadgerOps/sdkupdate/internal/download"
)

// Host OS literals accepted in Archive.HostOS.
const (
	HostMac   = "mac"
	HostWin   = "win"
	HostLinux = "linux"
	HostAll   = "all"
)

// HostOSes lists the valid host_os values in display order.
var HostOSes = []string{HostMac, HostWin, HostLinux, HostAll}

// Fetcher opens a readable stream for a URL. *download.Client implements it.
type Fetcher interface {
	Open(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// Checksum holds the content hash of an archive.
type Checksum struct {
	SHA1 string `json:"sha1"`
}

// Archive is one platform-specific downloadable payload of a bundle.
type Archive struct {
	HostOS   string    `json:"host_os,omitempty"`
	URL      string    `json:"url"`
	Size     uint64    `json:"size,omitempty"`
	Checksum *Checksum `json:"checksum,omitempty"`
}

// SHA1 returns the recorded checksum, or "" when the archive has none.
func (a *Archive) SHA1() string {
	if a.Checksum == nil {
		return ""
	}
	return a.Checksum.SHA1
}

// PlatformLabel returns the host_os used in messages. An archive without a
// host_os applies to every platform.
func (a *Archive) PlatformLabel() string {
	if a.HostOS == "" {
		return "all (default)"
	}
	return a.HostOS
}

// Validate checks the host_os literal and the presence of a URL.
func (a *Archive) Validate() error {
	if a.HostOS != "" && !contains(HostOSes, a.HostOS) {
		return fmt.Errorf("%w: invalid host_os %q in archive", ErrSchema, a.HostOS)
	}
	if a.URL == "" {
		return fmt.Errorf("%w: archive %q has no URL", ErrSchema, a.PlatformLabel())
	}
	return nil
}

// ResolveStream opens the archive URL. The caller must close the stream.
func (a *Archive) ResolveStream(ctx context.Context, f Fetcher) (io.ReadCloser, error) {
	rc, err := f.Open(ctx, a.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a valid URL for archive %s: %w", ErrFetch, a.URL, a.PlatformLabel(), err)
	}
	return rc, nil
}

// Refresh points the archive at url and recomputes its size and checksum
// from the bytes served there. The body is discarded.
func (a *Archive) Refresh(ctx context.Context, f Fetcher, url string, progress download.ProgressFunc) error {
	a.URL = url

	rc, err := a.ResolveStream(ctx, f)
	if err != nil {
		return err
	}
	defer rc.Close()

	digest, err := download.HashCopy(nil, rc, progress)
	if err != nil {
		return fmt.Errorf("%w: scanning %s: %w", ErrFetch, url, err)
	}

	a.Size = digest.Size
	a.Checksum = &Checksum{SHA1: digest.SHA1}
	return nil
}

// DownloadTo streams the archive into a new file at path and returns the
// digest of the bytes written. The stored size and checksum are not
// consulted; comparing them is up to the caller.
func (a *Archive) DownloadTo(ctx context.Context, f Fetcher, path string, progress download.ProgressFunc) (download.Digest, error) {
	rc, err := a.ResolveStream(ctx, f)
	if err != nil {
		return download.Digest{}, err
	}
	defer rc.Close()

	out, err := os.Create(path)
	if err != nil {
		return download.Digest{}, fmt.Errorf("creating %s: %w", path, err)
	}

	digest, err := download.HashCopy(out, rc, progress)
	if err != nil {
		out.Close()
		return download.Digest{}, fmt.Errorf("%w: downloading %s: %w", ErrFetch, a.URL, err)
	}
	if err := out.Close(); err != nil {
		return download.Digest{}, fmt.Errorf("closing %s: %w", path, err)
	}
	return digest, nil
}
