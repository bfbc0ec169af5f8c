package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/openmined/drivesync/internal/remote"
)

type EngineConfig struct {
	SourceFolderID string
	LogFolderID    string
	StagingDir     string
	OutputDir      string
	// LogFile is uploaded after every cycle and its base name is hidden
	// from remote listings.
	LogFile   string
	Exclude   []string
	ChunkSize int64
}

// SyncEngine runs sync cycles: LIST, RECONCILE, MERGE, PURGE, UPLOAD_LOG.
// It is not safe for concurrent use; the poller is its only caller.
type SyncEngine struct {
	lister   *Lister
	detector *ChangeDetector
	fetcher  *Fetcher
	merger   *StageMerger
	uploader *LogUploader
	logger   *slog.Logger
}

func NewSyncEngine(r remote.Remote, cfg *EngineConfig, logger *slog.Logger) (*SyncEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logPrefix := ""
	if cfg.LogFile != "" {
		logPrefix = filepath.Base(cfg.LogFile)
	}

	lister, err := NewLister(r, ListerOptions{
		RootFolderID:  cfg.SourceFolderID,
		LogFilePrefix: logPrefix,
		Exclude:       cfg.Exclude,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create lister: %w", err)
	}

	return &SyncEngine{
		lister:   lister,
		detector: NewChangeDetector(cfg.OutputDir, logger),
		fetcher:  NewFetcher(r, cfg.ChunkSize, logger),
		merger:   NewStageMerger(cfg.StagingDir, cfg.OutputDir, logger),
		uploader: NewLogUploader(r, cfg.LogFile, cfg.LogFolderID, logger),
		logger:   logger,
	}, nil
}

// RunCycle runs one full cycle and returns its report together with the
// error that ended it early, if any. Per-entry and per-file failures are
// contained and only show up as counters.
func (se *SyncEngine) RunCycle(ctx context.Context) (report *CycleReport, err error) {
	report = &CycleReport{ID: uuid.NewString(), Started: time.Now()}
	log := se.logger.With("cycle", report.ID[:8])
	ctx = withLogger(ctx, log)

	defer func() {
		if r := recover(); r != nil {
			report.Err = newSyncError(KindCycle, "", "", fmt.Errorf("panic in %s: %v", report.Phase, r))
			log.Error("sync error", "phase", report.Phase, "error", report.Err, "stack", string(debug.Stack()))
		}
		report.Duration = time.Since(report.Started)
		err = report.Err
	}()

	log.Info("=== starting sync cycle ===")

	report.Phase = PhaseList
	entries, listErr := se.lister.List(ctx, "")
	if listErr != nil {
		report.Err = newSyncError(KindCycle, OpList, "", listErr)
		log.Error("sync error", "phase", report.Phase, "error", listErr)
		return report, nil
	}
	report.Listed = len(entries)

	report.Phase = PhaseReconcile
	se.reconcile(ctx, entries, report)

	report.Phase = PhaseMerge
	merged := se.merger.Merge(ctx)
	report.Merged, report.MergeFailed = merged.Merged, merged.Failed

	report.Phase = PhasePurge
	purged := se.merger.Purge(ctx)
	report.Purged, report.PurgeFailed = purged.Purged, purged.Failed

	log.Info("=== sync cycle complete ===", "report", report)

	report.Phase = PhaseUploadLog
	if se.uploader.Enabled() {
		if _, err := se.uploader.Upload(ctx); err != nil {
			log.Error("sync", "op", OpUploadLog, "status", "Error", "error", err)
		} else {
			report.LogUploaded = true
		}
	}

	return report, nil
}

// reconcile fetches changed entries one at a time in listing order.
func (se *SyncEngine) reconcile(ctx context.Context, entries []*RemoteEntry, report *CycleReport) {
	log := loggerFrom(ctx, se.logger)

	for _, entry := range entries {
		decision := se.detector.Detect(ctx, entry)
		if !decision.Fetch {
			report.Skipped++
			log.Debug("sync", "op", OpSkipped, "path", entry.RelativePath, "reason", decision.Reason)
			continue
		}

		log.Info("sync", "op", OpWriteLocal, "status", "Pending", "path", entry.RelativePath,
			"reason", decision.Reason, "size", humanize.Bytes(uint64(max(entry.Size, 0))))

		n, err := se.fetcher.Fetch(ctx, entry, decision.LocalPath)
		if err != nil {
			report.FetchFailed++
			log.Error("sync", "op", OpWriteLocal, "status", "Error", "path", entry.RelativePath, "error", err)
			continue
		}
		report.Fetched++
		report.BytesIn += n
	}
}
