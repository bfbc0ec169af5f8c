package remote

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process Remote used by tests. Items are kept
// per parent folder in insertion order.
type Memory struct {
	// PageSize bounds items per List page; 0 means everything in one page.
	PageSize int

	mu        sync.Mutex
	children  map[string][]*Item
	content   map[string][]byte
	listErr   map[string]error
	openErr   map[string]error
	created   []*MemoryFile
	nextID    int
	listCalls int
	openCalls int
}

// MemoryFile is a file uploaded through CreateFile.
type MemoryFile struct {
	ID       string
	Meta     FileMeta
	Contents []byte
}

func NewMemory() *Memory {
	return &Memory{
		children: make(map[string][]*Item),
		content:  make(map[string][]byte),
		listErr:  make(map[string]error),
		openErr:  make(map[string]error),
	}
}

func (m *Memory) newID() string {
	m.nextID++
	return "mem-" + strconv.Itoa(m.nextID)
}

// AddFolder creates a folder under parent and returns its id.
func (m *Memory) AddFolder(parent, name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.newID()
	m.children[parent] = append(m.children[parent], &Item{
		ID:           id,
		Name:         name,
		MimeType:     FolderMimeType,
		IsFolder:     true,
		ModifiedTime: time.Now().UTC(),
	})
	return id
}

// AddFile creates a file under parent with its md5 as content hash.
func (m *Memory) AddFile(parent, name string, data []byte) string {
	sum := md5.Sum(data)
	return m.AddItem(parent, &Item{
		Name:        name,
		MimeType:    "application/octet-stream",
		ContentHash: hex.EncodeToString(sum[:]),
	}, data)
}

// AddItem stores a fully described item. An empty ID is assigned.
func (m *Memory) AddItem(parent string, item *Item, data []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item.ID == "" {
		item.ID = m.newID()
	}
	if item.ModifiedTime.IsZero() {
		item.ModifiedTime = time.Now().UTC()
	}
	item.Size = int64(len(data))
	m.children[parent] = append(m.children[parent], item)
	m.content[item.ID] = data
	return item.ID
}

// SetContent replaces the stored bytes and hash of an existing file.
func (m *Memory) SetContent(id string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.content[id] = data
	sum := md5.Sum(data)
	for _, items := range m.children {
		for _, item := range items {
			if item.ID == id {
				item.ContentHash = hex.EncodeToString(sum[:])
				item.Size = int64(len(data))
				item.ModifiedTime = time.Now().UTC()
			}
		}
	}
}

// FailList makes List of folderID return err; nil clears it.
func (m *Memory) FailList(folderID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setErr(m.listErr, folderID, err)
}

// FailOpen makes OpenRange of id return err; nil clears it.
func (m *Memory) FailOpen(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setErr(m.openErr, id, err)
}

func (m *Memory) setErr(set map[string]error, key string, err error) {
	if err == nil {
		delete(set, key)
		return
	}
	set[key] = err
}

// Created returns the files uploaded so far, oldest first.
func (m *Memory) Created() []*MemoryFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MemoryFile(nil), m.created...)
}

// Calls reports how many List and OpenRange calls were served.
func (m *Memory) Calls() (list, open int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls, m.openCalls
}

func (m *Memory) List(ctx context.Context, folderID, pageToken string) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listCalls++
	if err := m.listErr[folderID]; err != nil {
		return nil, err
	}

	items := m.children[folderID]
	start := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 || n > len(items) {
			return nil, fmt.Errorf("memory: bad page token %q", pageToken)
		}
		start = n
	}

	end := len(items)
	if m.PageSize > 0 && start+m.PageSize < end {
		end = start + m.PageSize
	}

	page := &Page{Items: make([]*Item, 0, end-start)}
	for _, item := range items[start:end] {
		cp := *item
		page.Items = append(page.Items, &cp)
	}
	if end < len(items) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

func (m *Memory) OpenRange(ctx context.Context, id string, offset, length int64) (io.ReadCloser, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.openCalls++
	if err := m.openErr[id]; err != nil {
		return nil, 0, err
	}

	data, ok := m.content[id]
	if !ok {
		return nil, 0, ErrNotFound
	}

	total := int64(len(data))
	if offset >= total {
		return io.NopCloser(bytes.NewReader(nil)), total, nil
	}
	end := min(offset+length, total)
	return io.NopCloser(bytes.NewReader(data[offset:end])), total, nil
}

func (m *Memory) CreateFile(ctx context.Context, meta *FileMeta, content io.Reader) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.newID()
	m.created = append(m.created, &MemoryFile{ID: id, Meta: *meta, Contents: data})
	return id, nil
}

var _ Remote = (*Memory)(nil)
