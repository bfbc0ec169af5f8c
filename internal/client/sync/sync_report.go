package sync

import (
	"log/slog"
	"time"
)

// CycleReport summarizes one cycle. Err is set when the cycle ended early.
type CycleReport struct {
	ID          string
	Started     time.Time
	Duration    time.Duration
	Phase       Phase // last phase entered
	Listed      int
	Fetched     int
	Skipped     int
	FetchFailed int
	BytesIn     int64
	Merged      int
	MergeFailed int
	Purged      int
	PurgeFailed int
	LogUploaded bool
	Err         error
}

// HasChanges reports whether the cycle wrote or deleted anything locally.
func (r *CycleReport) HasChanges() bool {
	return r.Fetched > 0 || r.Merged > 0 || r.Purged > 0
}

func (r *CycleReport) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("phase", string(r.Phase)),
		slog.Int("listed", r.Listed),
		slog.Int("fetched", r.Fetched),
		slog.Int("skipped", r.Skipped),
		slog.Int("fetchFailed", r.FetchFailed),
		slog.Int("merged", r.Merged),
		slog.Int("mergeFailed", r.MergeFailed),
		slog.Int("purged", r.Purged),
		slog.Int("purgeFailed", r.PurgeFailed),
		slog.Bool("logUploaded", r.LogUploaded),
		slog.Duration("took", r.Duration),
	)
}
