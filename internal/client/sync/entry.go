package sync

import (
	"time"
)

// RemoteEntry is a leaf of the remote tree. RelativePath always uses "/"
// separators and is unique within one listing.
type RemoteEntry struct {
	ID           string
	Name         string
	RelativePath string
	ContentHash  string
	MimeType     string
	Size         int64
	IsFolder     bool
	ModifiedTime time.Time
}

// HasHash is false when the remote did not report a content hash. Such
// entries are always fetched.
func (e *RemoteEntry) HasHash() bool {
	return e.ContentHash != ""
}
