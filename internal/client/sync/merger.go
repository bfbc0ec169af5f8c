package sync

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/openmined/drivesync/internal/utils"
)

type MergeResult struct {
	Merged int
	Failed int
}

type PurgeResult struct {
	Purged int
	Failed int
}

// StageMerger copies an externally populated staging tree into the output
// tree, overwriting whatever is there, and then empties the staging tree.
type StageMerger struct {
	stagingDir string
	outputDir  string
	logger     *slog.Logger
}

func NewStageMerger(stagingDir, outputDir string, logger *slog.Logger) *StageMerger {
	return &StageMerger{stagingDir: stagingDir, outputDir: outputDir, logger: logger}
}

// Merge mirrors every staged file at the same relative path under the output
// root. Failures are logged per file and never stop the pass.
func (m *StageMerger) Merge(ctx context.Context) MergeResult {
	log := loggerFrom(ctx, m.logger)
	var res MergeResult

	m.walkFiles(log, OpMerge, func(path, relPath string, d fs.DirEntry) {
		if !mergeable(path, d) {
			log.Warn("sync", "op", OpMerge, "status", "Ignored", "path", relPath, "reason", "not a regular file")
			return
		}

		dst := filepath.Join(m.outputDir, relPath)
		overwrite := utils.FileExists(dst)

		if err := utils.CopyFile(path, dst); err != nil {
			res.Failed++
			log.Error("sync", "op", OpMerge, "status", "Error", "path", relPath,
				"error", newSyncError(KindMergeCopy, OpMerge, relPath, err))
			return
		}

		res.Merged++
		log.Info("sync", "op", OpMerge, "status", "Completed", "path", relPath, "overwrite", overwrite)
	})

	return res
}

// Purge deletes every non-directory entry under the staging root, symlinks
// included, and then prunes the directories that became empty. The staging
// root itself is kept.
func (m *StageMerger) Purge(ctx context.Context) PurgeResult {
	log := loggerFrom(ctx, m.logger)
	var res PurgeResult

	m.walkFiles(log, OpPurge, func(path, relPath string, _ fs.DirEntry) {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			res.Failed++
			log.Error("sync", "op", OpPurge, "status", "Error", "path", relPath,
				"error", newSyncError(KindCleanupDelete, OpPurge, relPath, err))
			return
		}
		res.Purged++
		log.Info("sync", "op", OpPurge, "status", "Completed", "path", relPath)
	})

	m.pruneDirs(log)
	return res
}

// walkFiles calls fn for every non-directory entry below the staging root.
// Symlinks are passed as links and never descended into. Walk errors below
// the root are logged and the affected subtree skipped.
func (m *StageMerger) walkFiles(log *slog.Logger, op OpType, fn func(path, relPath string, d fs.DirEntry)) {
	err := filepath.WalkDir(m.stagingDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == m.stagingDir {
				return walkErr
			}
			log.Error("sync", "op", op, "status", "Error", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(m.stagingDir, path)
		if err != nil {
			log.Error("sync", "op", op, "status", "Error", "path", path, "error", err)
			return nil
		}

		fn(path, relPath, d)
		return nil
	})

	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("sync", "op", op, "status", "Ignored", "reason", "staging dir missing", "dir", m.stagingDir)
	} else if err != nil {
		log.Error("sync", "op", op, "status", "Error", "dir", m.stagingDir, "error", err)
	}
}

// mergeable is true for regular files and for symlinks resolving to one.
// Devices, pipes and sockets are never opened.
func mergeable(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		// dangling or unreadable link, the copy reports it
		return true
	}
	return info.Mode().IsRegular()
}

func (m *StageMerger) pruneDirs(log *slog.Logger) {
	var dirs []string
	filepath.WalkDir(m.stagingDir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() && path != m.stagingDir {
			dirs = append(dirs, path)
		}
		return nil
	})

	// deepest first
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, dir := range dirs {
		if err := os.Remove(dir); err != nil {
			log.Debug("sync", "op", OpPurge, "status", "Kept", "path", dir, "error", err)
		}
	}
}
