package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/drivesync/internal/remote"
)

var errUnsafeName = errors.New("unsafe entry name")

type ListerOptions struct {
	// RootFolderID is listed when List is called with an empty folder id.
	RootFolderID string
	// LogFilePrefix hides the worker's own uploaded log from listings.
	LogFilePrefix string
	// Exclude holds doublestar globs matched against relative paths.
	Exclude []string
}

// Lister flattens a remote folder tree into its leaf entries.
type Lister struct {
	remote remote.Remote
	opts   ListerOptions
	logger *slog.Logger
}

func NewLister(r remote.Remote, opts ListerOptions, logger *slog.Logger) (*Lister, error) {
	for _, pattern := range opts.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	return &Lister{remote: r, opts: opts, logger: logger}, nil
}

type folderTask struct {
	id     string
	prefix string
}

// List walks folderID breadth first with an explicit queue and returns every
// non-folder descendant. Any listing failure fails the whole call.
func (l *Lister) List(ctx context.Context, folderID string) ([]*RemoteEntry, error) {
	log := loggerFrom(ctx, l.logger)

	if folderID == "" {
		folderID = l.opts.RootFolderID
	}

	visited := mapset.NewThreadUnsafeSet(folderID)
	seenPaths := mapset.NewThreadUnsafeSet[string]()
	queue := []folderTask{{id: folderID}}

	var entries []*RemoteEntry
	for len(queue) > 0 {
		task := queue[0]
		queue = queue[1:]

		log.Debug("sync", "op", OpList, "folder", task.id, "path", task.prefix)

		pageToken := ""
		for {
			page, err := l.remote.List(ctx, task.id, pageToken)
			if err != nil {
				return nil, newSyncError(KindListing, OpList, task.prefix, err)
			}

			for _, item := range page.Items {
				if item.Trashed {
					continue
				}

				if l.opts.LogFilePrefix != "" && strings.HasPrefix(item.Name, l.opts.LogFilePrefix) {
					log.Info("sync", "op", OpSkipped, "reason", "log artifact", "name", item.Name)
					continue
				}

				if err := checkName(item.Name); err != nil {
					log.Warn("sync", "op", OpSkipped, "reason", "unsafe name", "id", item.ID, "name", item.Name)
					continue
				}

				relPath := path.Join(task.prefix, item.Name)

				if item.IsFolder {
					if !visited.Add(item.ID) {
						log.Warn("sync", "op", OpSkipped, "reason", "folder already listed", "id", item.ID, "path", relPath)
						continue
					}
					queue = append(queue, folderTask{id: item.ID, prefix: relPath})
					continue
				}

				if l.excluded(relPath) {
					log.Debug("sync", "op", OpSkipped, "reason", "excluded", "path", relPath)
					continue
				}

				if !seenPaths.Add(relPath) {
					log.Warn("sync", "op", OpSkipped, "reason", "duplicate path", "id", item.ID, "path", relPath)
					continue
				}

				entries = append(entries, &RemoteEntry{
					ID:           item.ID,
					Name:         item.Name,
					RelativePath: relPath,
					ContentHash:  strings.ToLower(item.ContentHash),
					MimeType:     item.MimeType,
					Size:         item.Size,
					ModifiedTime: item.ModifiedTime,
				})
			}

			if page.NextPageToken == "" {
				break
			}
			pageToken = page.NextPageToken
		}
	}

	return entries, nil
}

func (l *Lister) excluded(relPath string) bool {
	for _, pattern := range l.opts.Exclude {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
	}
	return false
}

// checkName rejects names that would escape or collapse their folder.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%w: %q", errUnsafeName, name)
	}
	return nil
}
