package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openmined/drivesync/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), "",
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return c
}

func TestClient_List(t *testing.T) {
	var gotQuery, gotToken string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files", r.URL.Path)
		gotQuery = r.URL.Query().Get("q")
		gotToken = r.URL.Query().Get("pageToken")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"nextPageToken": "next",
			"files": []map[string]any{
				{"id": "f1", "name": "report.pdf", "mimeType": "application/pdf", "md5Checksum": "abc", "size": "42", "modifiedTime": "2024-05-01T10:00:00.000Z"},
				{"id": "d1", "name": "sub", "mimeType": remote.FolderMimeType},
			},
		})
	}))

	page, err := c.List(context.Background(), "root'id", "tok")
	require.NoError(t, err)

	assert.Equal(t, `'root\'id' in parents and trashed = false`, gotQuery)
	assert.Equal(t, "tok", gotToken)
	assert.Equal(t, "next", page.NextPageToken)
	require.Len(t, page.Items, 2)

	file := page.Items[0]
	assert.Equal(t, "f1", file.ID)
	assert.Equal(t, "abc", file.ContentHash)
	assert.Equal(t, int64(42), file.Size)
	assert.False(t, file.IsFolder)
	assert.Equal(t, 2024, file.ModifiedTime.Year())

	assert.True(t, page.Items[1].IsFolder)
}

func TestClient_ListNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":404,"message":"File not found: x."}}`)
	}))

	_, err := c.List(context.Background(), "x", "")
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestClient_ChunkedDownload(t *testing.T) {
	payload := []byte(strings.Repeat("drive!", 20))
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/blob", r.URL.Path)
		assert.Equal(t, "media", r.URL.Query().Get("alt"))

		var start, end int
		if _, err := fmt.Sscanf(r.Header.Get("Range"), "bytes=%d-%d", &start, &end); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		end = min(end, len(payload)-1)

		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(payload)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(payload[start : end+1])
	}))

	var buf bytes.Buffer
	n, err := remote.Download(context.Background(), c, "blob", &buf, 32, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, buf.Bytes())
}

func TestClient_DownloadEmptyFile(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		fmt.Fprint(w, `{"error":{"code":416,"message":"Request range not satisfiable"}}`)
	}))

	var buf bytes.Buffer
	n, err := remote.Download(context.Background(), c, "empty", &buf, 32, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestParseContentRangeTotal(t *testing.T) {
	total, err := parseContentRangeTotal("bytes 0-9/120")
	require.NoError(t, err)
	assert.Equal(t, int64(120), total)

	_, err = parseContentRangeTotal("bytes 0-9/*")
	assert.Error(t, err)
	_, err = parseContentRangeTotal("")
	assert.Error(t, err)
}
