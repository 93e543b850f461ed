package engine

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/BadgerOps/sdkupdate/internal/safety"
)

// Extractor unpacks a downloaded archive into an existing, empty directory.
type Extractor interface {
	Extract(ctx context.Context, archivePath, destDir string) error
}

// commandRunner runs an external program and returns its combined output.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// CommandExtractor runs the platform's external extraction tool: tar on
// mac and linux, the self-extracting installer itself on Windows.
type CommandExtractor struct {
	HostOS string
	logger *slog.Logger
	run    commandRunner
}

// NewCommandExtractor creates an extractor for hostOS.
func NewCommandExtractor(hostOS string, logger *slog.Logger) *CommandExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandExtractor{HostOS: hostOS, logger: logger, run: execRunner}
}

// command returns the program and arguments used to unpack archivePath.
func (e *CommandExtractor) command(archivePath, destDir string) (string, []string) {
	if e.HostOS == "win" {
		return archivePath, []string{"/S", "/D=" + destDir}
	}
	return "tar", []string{"-C", destDir, "--strip-components=1", "-xvzf", archivePath}
}

// Extract runs the extraction tool and fails on a non-zero exit.
func (e *CommandExtractor) Extract(ctx context.Context, archivePath, destDir string) error {
	name, args := e.command(archivePath, destDir)
	output, err := e.run(ctx, name, args...)
	if err != nil {
		e.logger.Warn("extraction command failed", "command", name, "error", err, "output", string(output))
		return fmt.Errorf("%s failed on %s: %w", filepath.Base(name), archivePath, err)
	}

	e.logger.Debug("extraction command completed", "command", name, "output", string(output))
	return nil
}

// NativeExtractor unpacks tar archives in-process. The compression is
// detected from the leading bytes: gzip, zstd, xz, or none. The first path
// component of every entry is dropped, matching tar --strip-components=1.
type NativeExtractor struct {
	logger *slog.Logger
}

// NewNativeExtractor creates an in-process tar extractor.
func NewNativeExtractor(logger *slog.Logger) *NativeExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &NativeExtractor{logger: logger}
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// decompress wraps r in the decoder matching its magic bytes.
func decompress(r io.Reader) (io.Reader, func(), error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(xzMagic))

	switch {
	case bytes.HasPrefix(head, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		return zr, func() { _ = zr.Close() }, nil
	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("creating zstd reader: %w", err)
		}
		return zr, zr.Close, nil
	case bytes.HasPrefix(head, xzMagic):
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("creating xz reader: %w", err)
		}
		return xr, func() {}, nil
	default:
		return br, func() {}, nil
	}
}

// Extract unpacks archivePath into destDir. Entries that would land
// outside destDir are rejected.
func (e *NativeExtractor) Extract(ctx context.Context, archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	r, closeFn, err := decompress(f)
	if err != nil {
		return err
	}
	defer closeFn()

	tr := tar.NewReader(r)
	extracted := 0
	var totalSize int64

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}

		rel, ok := stripFirstComponent(header.Name)
		if !ok {
			continue
		}
		destPath, err := safety.ResolveUnder(destDir, rel)
		if err != nil {
			return fmt.Errorf("unsafe path in archive %q: %w", header.Name, err)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return fmt.Errorf("creating directory: %w", err)
			}
		case tar.TypeReg:
			n, err := writeEntry(destPath, tr, header.FileInfo().Mode().Perm())
			if err != nil {
				return fmt.Errorf("extracting %s: %w", header.Name, err)
			}
			extracted++
			totalSize += n
		case tar.TypeSymlink:
			if err := writeSymlink(destDir, destPath, header.Linkname); err != nil {
				return fmt.Errorf("extracting %s: %w", header.Name, err)
			}
		default:
			return fmt.Errorf("unsupported tar entry type for %s: %c", header.Name, header.Typeflag)
		}
	}

	e.logger.Debug("archive extracted", "archive", archivePath, "files", extracted, "bytes", totalSize)
	return nil
}

// stripFirstComponent drops the leading directory of a tar entry name.
// It reports false for entries that are only the leading directory.
// Absolute and parent-relative names are returned whole so the join
// under the destination rejects them.
func stripFirstComponent(name string) (string, bool) {
	clean := path.Clean(strings.TrimPrefix(name, "./"))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return clean, true
	}
	_, rest, found := strings.Cut(clean, "/")
	if !found || rest == "" {
		return "", false
	}
	return rest, true
}

// writeEntry writes a regular file at destPath. An existing symlink at
// destPath is refused rather than written through.
func writeEntry(destPath string, r io.Reader, perm os.FileMode) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, fmt.Errorf("creating directory: %w", err)
	}
	if info, err := os.Lstat(destPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return 0, fmt.Errorf("refusing to write through symlink %s", destPath)
	}
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|oNoFollow, perm)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, r)
	if closeErr := out.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return n, err
}

// writeSymlink creates a relative symlink whose target, resolved through
// any symlinks already extracted, stays under root.
func writeSymlink(root, destPath, target string) error {
	if _, err := safety.ResolveLinkTarget(root, filepath.Dir(destPath), target); err != nil {
		return fmt.Errorf("symlink target: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return os.Symlink(target, destPath)
}
