package remote

import (
	"context"
	"fmt"
	"io"
)

// DefaultChunkSize is the range size requested per round trip.
const DefaultChunkSize int64 = 10 * 1024 * 1024

// ProgressFunc is called after every chunk with the bytes written so far.
type ProgressFunc func(written, total int64)

// Download streams the content of id into w one range at a time and returns
// the number of bytes written.
func Download(ctx context.Context, r Remote, id string, w io.Writer, chunkSize int64, progress ProgressFunc) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var written int64
	for {
		body, total, err := r.OpenRange(ctx, id, written, chunkSize)
		if err != nil {
			return written, fmt.Errorf("open range %d: %w", written, err)
		}

		n, err := io.Copy(w, body)
		body.Close()
		written += n
		if err != nil {
			return written, fmt.Errorf("copy range: %w", err)
		}

		if progress != nil {
			progress(written, total)
		}

		if written >= total {
			return written, nil
		}
		if n == 0 {
			return written, fmt.Errorf("%w: got %d of %d bytes", ErrShortTransfer, written, total)
		}
	}
}
