package sync

import (
	"errors"
	"fmt"
)

// Kind classifies a sync failure. Each kind has a fixed containment scope:
//
//	KindListing        aborts the rest of the cycle
//	KindFetch          skips the entry
//	KindHash           forces a fetch
//	KindMergeCopy      skips the staged file
//	KindCleanupDelete  skips the staged file
//	KindLogUpload      ignored until the next cycle
//	KindCycle          ends the cycle, polling continues
type Kind string

const (
	KindListing       Kind = "listing"
	KindFetch         Kind = "fetch"
	KindHash          Kind = "hash"
	KindMergeCopy     Kind = "merge_copy"
	KindCleanupDelete Kind = "cleanup_delete"
	KindLogUpload     Kind = "log_upload"
	KindCycle         Kind = "cycle"
)

type SyncError struct {
	Kind Kind
	Op   OpType
	Path string
	Err  error
}

func newSyncError(kind Kind, op OpType, path string, err error) *SyncError {
	return &SyncError{Kind: kind, Op: op, Path: path, Err: err}
}

func (e *SyncError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("sync %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("sync %s %q: %v", e.Kind, e.Path, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// IsKind reports whether any SyncError in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var se *SyncError
		if !errors.As(err, &se) {
			return false
		}
		if se.Kind == kind {
			return true
		}
		err = se.Err
	}
	return false
}
