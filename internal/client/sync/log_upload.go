package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/openmined/drivesync/internal/remote"
)

// LogUploader pushes a snapshot of the local log file to the remote log folder.
type LogUploader struct {
	remote   remote.Remote
	logPath  string
	folderID string
	logger   *slog.Logger
}

func NewLogUploader(r remote.Remote, logPath, folderID string, logger *slog.Logger) *LogUploader {
	return &LogUploader{remote: r, logPath: logPath, folderID: folderID, logger: logger}
}

// Enabled is false when no log file or log folder is configured.
func (u *LogUploader) Enabled() bool {
	return u.logPath != "" && u.folderID != ""
}

// Upload sends the bytes present at call time; lines appended while the
// upload is running are left for the next cycle.
func (u *LogUploader) Upload(ctx context.Context) (string, error) {
	log := loggerFrom(ctx, u.logger)

	f, err := os.Open(u.logPath)
	if err != nil {
		return "", newSyncError(KindLogUpload, OpUploadLog, u.logPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", newSyncError(KindLogUpload, OpUploadLog, u.logPath, err)
	}
	size := info.Size()

	id, err := u.remote.CreateFile(ctx, &remote.FileMeta{
		Name:     filepath.Base(u.logPath),
		ParentID: u.folderID,
		MimeType: "text/plain",
		Size:     size,
	}, io.NewSectionReader(f, 0, size))
	if err != nil {
		return "", newSyncError(KindLogUpload, OpUploadLog, u.logPath, fmt.Errorf("create: %w", err))
	}

	log.Info("sync", "op", OpUploadLog, "status", "Completed", "path", u.logPath, "folder", u.folderID, "id", id, "size", humanize.Bytes(uint64(size)))
	return id, nil
}
