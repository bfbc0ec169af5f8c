package sync

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/openmined/drivesync/internal/remote"
	"github.com/openmined/drivesync/internal/utils"
)

// progressLogThreshold keeps small downloads out of the debug log.
const progressLogThreshold = 4 * 1024 * 1024

// Fetcher downloads entries into the output tree. The content is streamed
// into a hidden temp file beside the target and renamed into place only
// after the transfer and the hash check succeeded.
type Fetcher struct {
	remote    remote.Remote
	chunkSize int64
	logger    *slog.Logger
}

func NewFetcher(r remote.Remote, chunkSize int64, logger *slog.Logger) *Fetcher {
	if chunkSize <= 0 {
		chunkSize = remote.DefaultChunkSize
	}
	return &Fetcher{remote: r, chunkSize: chunkSize, logger: logger}
}

// Fetch writes e to localPath and returns the number of bytes written.
func (f *Fetcher) Fetch(ctx context.Context, e *RemoteEntry, localPath string) (int64, error) {
	log := loggerFrom(ctx, f.logger)

	tmp, err := utils.NewAtomicFile(localPath)
	if err != nil {
		return 0, newSyncError(KindFetch, OpWriteLocal, e.RelativePath, err)
	}
	defer tmp.Abort()

	hasher := md5.New()
	progress := func(written, total int64) {
		if total < progressLogThreshold {
			return
		}
		log.Debug("sync", "op", OpWriteLocal, "status", "Downloading", "path", e.RelativePath,
			"progress", fmt.Sprintf("%.2f%%", float64(written)/float64(total)*100))
	}

	n, err := remote.Download(ctx, f.remote, e.ID, io.MultiWriter(tmp, hasher), f.chunkSize, progress)
	if err != nil {
		return n, newSyncError(KindFetch, OpWriteLocal, e.RelativePath, err)
	}

	if e.HasHash() {
		got := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(got, e.ContentHash) {
			return n, newSyncError(KindFetch, OpWriteLocal, e.RelativePath,
				fmt.Errorf("integrity check failed: expected %q got %q", e.ContentHash, got))
		}
	}

	if err := tmp.Commit(); err != nil {
		return n, newSyncError(KindFetch, OpWriteLocal, e.RelativePath, err)
	}

	if !e.ModifiedTime.IsZero() {
		if err := os.Chtimes(localPath, e.ModifiedTime, e.ModifiedTime); err != nil {
			log.Debug("sync", "op", OpWriteLocal, "status", "ChtimesFailed", "path", e.RelativePath, "error", err)
		}
	}

	log.Info("sync", "op", OpWriteLocal, "status", "Completed", "path", e.RelativePath, "size", humanize.Bytes(uint64(n)))
	return n, nil
}
