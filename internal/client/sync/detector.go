package sync

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/drivesync/internal/utils"
)

// Reason explains a Decision.
type Reason string

const (
	ReasonUnchanged    Reason = "unchanged"
	ReasonMissing      Reason = "missing"
	ReasonNoRemoteHash Reason = "no remote hash"
	ReasonHashMismatch Reason = "hash mismatch"
	ReasonHashError    Reason = "hash error"
)

type Decision struct {
	Fetch     bool
	Reason    Reason
	LocalPath string
	// LocalHash is empty unless the local file was hashed successfully.
	LocalHash string
}

// ChangeDetector decides whether a remote entry must be fetched by comparing
// its content hash with the file already in the output tree.
type ChangeDetector struct {
	outputDir string
	logger    *slog.Logger
}

func NewChangeDetector(outputDir string, logger *slog.Logger) *ChangeDetector {
	return &ChangeDetector{outputDir: outputDir, logger: logger}
}

// LocalPath maps an entry into the output tree.
func (d *ChangeDetector) LocalPath(e *RemoteEntry) string {
	return filepath.Join(d.outputDir, filepath.FromSlash(e.RelativePath))
}

// Detect only reads the local file; it never writes.
func (d *ChangeDetector) Detect(ctx context.Context, e *RemoteEntry) Decision {
	localPath := d.LocalPath(e)
	decision := Decision{Fetch: true, LocalPath: localPath}

	if _, err := os.Stat(localPath); errors.Is(err, fs.ErrNotExist) {
		decision.Reason = ReasonMissing
		return decision
	}

	localHash, err := utils.FileHash(localPath)
	if err != nil {
		hashErr := newSyncError(KindHash, OpWriteLocal, e.RelativePath, err)
		loggerFrom(ctx, d.logger).Warn("sync", "op", OpWriteLocal, "status", "HashFailed", "path", e.RelativePath, "error", hashErr)
		decision.Reason = ReasonHashError
		return decision
	}
	decision.LocalHash = localHash

	switch {
	case !e.HasHash():
		decision.Reason = ReasonNoRemoteHash
	case strings.EqualFold(localHash, e.ContentHash):
		decision.Fetch = false
		decision.Reason = ReasonUnchanged
	default:
		decision.Reason = ReasonHashMismatch
	}
	return decision
}
