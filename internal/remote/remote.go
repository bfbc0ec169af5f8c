// Package remote defines the contract the sync engine consumes from a
// hierarchical remote store, plus the chunked download protocol built on it.
package remote

import (
	"context"
	"errors"
	"io"
	"time"
)

// FolderMimeType marks folder items, matching the Drive convention.
const FolderMimeType = "application/vnd.google-apps.folder"

var (
	ErrNotFound      = errors.New("remote: item not found")
	ErrShortTransfer = errors.New("remote: transfer ended before the advertised size")
)

// Item is one direct child of a remote folder.
type Item struct {
	ID           string
	Name         string
	MimeType     string
	ContentHash  string // hex md5, empty when the remote does not know it
	Size         int64
	ModifiedTime time.Time
	IsFolder     bool
	Trashed      bool
}

// Page is one page of a folder listing. NextPageToken is empty on the last page.
type Page struct {
	Items         []*Item
	NextPageToken string
}

// FileMeta describes a file to be created on the remote.
type FileMeta struct {
	Name     string
	ParentID string
	MimeType string
	Size     int64
}

type Remote interface {
	// List returns one page of the direct children of folderID.
	List(ctx context.Context, folderID, pageToken string) (*Page, error)

	// OpenRange opens the byte range [offset, offset+length) of an item's
	// content and reports the item's total size. Zero-length items return an
	// empty body and a total of 0.
	OpenRange(ctx context.Context, id string, offset, length int64) (io.ReadCloser, int64, error)

	// CreateFile uploads content as a new file and returns its id.
	CreateFile(ctx context.Context, meta *FileMeta, content io.Reader) (string, error)
}
