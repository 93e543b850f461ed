package download

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
)

// ChunkSize is the read size used by HashCopy.
const ChunkSize = 32 * 1024

// ProgressPhase identifies which point of a transfer a ProgressFunc call reports.
type ProgressPhase int

const (
	ProgressStart ProgressPhase = iota
	ProgressChunk
	ProgressDone
)

// ProgressFunc is called before the first read, after every chunk, and
// after the last read. written is the number of bytes consumed so far.
type ProgressFunc func(phase ProgressPhase, written int64)

// Digest is the content address of a byte stream.
type Digest struct {
	SHA1 string
	Size uint64
}

// HashCopy drains src in ChunkSize chunks, hashing every chunk with SHA-1
// and counting its bytes. When dst is non-nil each chunk is also written to
// dst. Memory use is bounded by ChunkSize regardless of the payload size.
// On any read or write error the zero Digest is returned.
func HashCopy(dst io.Writer, src io.Reader, progress ProgressFunc) (Digest, error) {
	if progress == nil {
		progress = func(ProgressPhase, int64) {}
	}

	h := sha1.New()
	buf := make([]byte, ChunkSize)
	var size int64

	progress(ProgressStart, 0)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			_, _ = h.Write(chunk)
			size += int64(n)
			if dst != nil {
				if _, werr := dst.Write(chunk); werr != nil {
					return Digest{}, fmt.Errorf("writing chunk: %w", werr)
				}
			}
			progress(ProgressChunk, size)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Digest{}, fmt.Errorf("reading chunk: %w", err)
		}
	}
	progress(ProgressDone, size)

	return Digest{
		SHA1: hex.EncodeToString(h.Sum(nil)),
		Size: uint64(size),
	}, nil
}

// DotProgress returns a ProgressFunc that prints a dot to w every eleventh
// chunk and a newline once the transfer completes.
func DotProgress(w io.Writer) ProgressFunc {
	count := 0
	return func(phase ProgressPhase, _ int64) {
		switch phase {
		case ProgressStart:
			count = 0
		case ProgressDone:
			fmt.Fprintln(w)
		default:
			count++
			if count > 10 {
				fmt.Fprint(w, ".")
				count = 0
			}
		}
	}
}
