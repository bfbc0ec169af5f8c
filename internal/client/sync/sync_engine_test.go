package sync

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/drivesync/internal/remote"
	"github.com/openmined/drivesync/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	mem     *remote.Memory
	engine  *SyncEngine
	staging string
	output  string
	logFile string
}

func newEngineFixture(t *testing.T, r remote.Remote, mem *remote.Memory) *engineFixture {
	t.Helper()
	root := t.TempDir()
	f := &engineFixture{
		mem:     mem,
		staging: filepath.Join(root, "staging"),
		output:  filepath.Join(root, "output"),
		logFile: filepath.Join(root, "drive_sync.log"),
	}
	require.NoError(t, utils.EnsureDir(f.staging))
	require.NoError(t, utils.EnsureDir(f.output))
	writeFile(t, f.logFile, "worker log\n")

	engine, err := NewSyncEngine(r, &EngineConfig{
		SourceFolderID: "root",
		LogFolderID:    "logs",
		StagingDir:     f.staging,
		OutputDir:      f.output,
		LogFile:        f.logFile,
		ChunkSize:      64,
	}, discardLogger())
	require.NoError(t, err)
	f.engine = engine
	return f
}

func (f *engineFixture) run(t *testing.T) *CycleReport {
	t.Helper()
	report, err := f.engine.RunCycle(context.Background())
	require.NoError(t, err)
	return report
}

func snapshot(t *testing.T, root string) map[string]time.Time {
	t.Helper()
	state := make(map[string]time.Time)
	require.NoError(t, filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		state[path] = info.ModTime()
		return nil
	}))
	return state
}

func TestSyncEngine_MirrorsRemoteTree(t *testing.T) {
	mem := remote.NewMemory()
	x := mem.AddFolder("root", "X")
	y := mem.AddFolder(x, "Y")
	mem.AddFile(y, "f", []byte("deep file"))
	mem.AddFile("root", "readme.md", []byte("# hi"))
	f := newEngineFixture(t, mem, mem)

	report := f.run(t)

	assert.Equal(t, 2, report.Listed)
	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, PhaseUploadLog, report.Phase)
	assert.True(t, report.LogUploaded)
	assert.Equal(t, "deep file", readFile(t, filepath.Join(f.output, "X", "Y", "f")))
	assert.Equal(t, "# hi", readFile(t, filepath.Join(f.output, "readme.md")))
}

func TestSyncEngine_HashCorrectness(t *testing.T) {
	mem := remote.NewMemory()
	mem.AddFile("root", "a.bin", []byte("alpha"))
	sub := mem.AddFolder("root", "sub")
	mem.AddFile(sub, "b.bin", []byte("beta beta beta beta beta beta beta beta beta beta beta beta beta beta"))
	f := newEngineFixture(t, mem, mem)
	f.run(t)

	entries, err := f.engine.lister.List(context.Background(), "")
	require.NoError(t, err)
	for _, e := range entries {
		hash, err := utils.FileHash(f.engine.detector.LocalPath(e))
		require.NoError(t, err)
		assert.Equal(t, e.ContentHash, hash, e.RelativePath)
	}
}

func TestSyncEngine_Idempotent(t *testing.T) {
	mem := remote.NewMemory()
	mem.AddFile("root", "one.txt", []byte("1"))
	sub := mem.AddFolder("root", "nested")
	mem.AddFile(sub, "two.txt", []byte("2"))
	f := newEngineFixture(t, mem, mem)

	first := f.run(t)
	assert.Equal(t, 2, first.Fetched)
	before := snapshot(t, f.output)
	_, opensBefore := mem.Calls()

	second := f.run(t)
	assert.Equal(t, 0, second.Fetched)
	assert.Equal(t, 2, second.Skipped)
	assert.False(t, second.HasChanges())
	assert.Equal(t, before, snapshot(t, f.output))

	_, opensAfter := mem.Calls()
	assert.Equal(t, opensBefore, opensAfter)
}

func TestSyncEngine_SkipsMatchingLocalFile(t *testing.T) {
	mem := remote.NewMemory()
	mem.AddFile("root", "same.txt", []byte("identical"))
	f := newEngineFixture(t, mem, mem)

	local := filepath.Join(f.output, "same.txt")
	writeFile(t, local, "identical")
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(local, old, old))

	report := f.run(t)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Fetched)

	info, err := os.Stat(local)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old))
}

func TestSyncEngine_OverwritesChangedAndUnhashedFiles(t *testing.T) {
	mem := remote.NewMemory()
	id := mem.AddFile("root", "doc.txt", []byte("v1"))
	mem.AddItem("root", &remote.Item{Name: "export.csv"}, []byte("fresh"))
	f := newEngineFixture(t, mem, mem)

	writeFile(t, filepath.Join(f.output, "export.csv"), "fresh")
	f.run(t)

	mem.SetContent(id, []byte("v2"))
	report := f.run(t)

	// export.csv has no remote hash so it is fetched every cycle
	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, "v2", readFile(t, filepath.Join(f.output, "doc.txt")))
}

func TestSyncEngine_StagingMerge(t *testing.T) {
	mem := remote.NewMemory()
	f := newEngineFixture(t, mem, mem)

	writeFile(t, filepath.Join(f.staging, "a", "b.txt"), "C")
	writeFile(t, filepath.Join(f.output, "a", "b.txt"), "different")

	report := f.run(t)

	assert.Equal(t, 1, report.Merged)
	assert.Equal(t, 1, report.Purged)
	assert.Equal(t, "C", readFile(t, filepath.Join(f.output, "a", "b.txt")))
	assert.NoFileExists(t, filepath.Join(f.staging, "a", "b.txt"))
}

func TestSyncEngine_FetchFailureIsContained(t *testing.T) {
	mem := remote.NewMemory()
	var ids []string
	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt"} {
		ids = append(ids, mem.AddFile("root", name, []byte("content of "+name)))
	}
	mem.FailOpen(ids[1], errors.New("503 backend error"))
	f := newEngineFixture(t, mem, mem)
	writeFile(t, filepath.Join(f.staging, "inbox.txt"), "inbox")

	report := f.run(t)
	assert.NoError(t, report.Err)
	assert.Equal(t, 3, report.Fetched)
	assert.Equal(t, 1, report.FetchFailed)
	assert.Equal(t, 1, report.Merged)
	assert.True(t, report.LogUploaded)
	assert.NoFileExists(t, filepath.Join(f.output, "b.txt"))

	mem.FailOpen(ids[1], nil)
	next := f.run(t)
	assert.Equal(t, 1, next.Fetched)
	assert.Equal(t, 3, next.Skipped)
	assert.Equal(t, "content of b.txt", readFile(t, filepath.Join(f.output, "b.txt")))
}

func TestSyncEngine_ListingFailureEndsCycleEarly(t *testing.T) {
	mem := remote.NewMemory()
	mem.AddFile("root", "a.txt", []byte("a"))
	boom := errors.New("invalid credentials")
	mem.FailList("root", boom)
	f := newEngineFixture(t, mem, mem)
	writeFile(t, filepath.Join(f.staging, "pending.txt"), "pending")

	report, err := f.engine.RunCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, IsKind(err, KindCycle))
	assert.True(t, IsKind(err, KindListing))
	assert.Equal(t, PhaseList, report.Phase)

	// later phases were skipped
	assert.FileExists(t, filepath.Join(f.staging, "pending.txt"))
	assert.NoFileExists(t, filepath.Join(f.output, "pending.txt"))
	assert.Empty(t, mem.Created())
}

func TestSyncEngine_LogSelfExclusion(t *testing.T) {
	mem := remote.NewMemory()
	mem.AddFile("root", "data.txt", []byte("data"))
	f := newEngineFixture(t, mem, mem)
	f.run(t)

	// simulate the uploaded log landing in the mirrored folder
	uploaded := mem.Created()
	require.Len(t, uploaded, 1)
	mem.AddFile("root", uploaded[0].Meta.Name, uploaded[0].Contents)
	mem.AddFile("root", "drive_sync.log.2024-01-01", []byte("rotated"))

	report := f.run(t)
	assert.Equal(t, 1, report.Listed)
	assert.NoFileExists(t, filepath.Join(f.output, "drive_sync.log"))
	assert.NoFileExists(t, filepath.Join(f.output, "drive_sync.log.2024-01-01"))
}

type failingUpload struct{ *remote.Memory }

func (failingUpload) CreateFile(ctx context.Context, meta *remote.FileMeta, content io.Reader) (string, error) {
	return "", errors.New("403 insufficient permissions")
}

func TestSyncEngine_LogUploadFailureIsIgnored(t *testing.T) {
	mem := remote.NewMemory()
	mem.AddFile("root", "a.txt", []byte("a"))
	f := newEngineFixture(t, failingUpload{mem}, mem)

	report, err := f.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.False(t, report.LogUploaded)
	assert.Equal(t, 1, report.Fetched)
}

type panickingRemote struct{ *remote.Memory }

func (panickingRemote) List(ctx context.Context, folderID, pageToken string) (*remote.Page, error) {
	panic("nil page")
}

func TestSyncEngine_RecoversPanics(t *testing.T) {
	mem := remote.NewMemory()
	f := newEngineFixture(t, panickingRemote{mem}, mem)

	report, err := f.engine.RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindCycle))
	assert.Equal(t, PhaseList, report.Phase)
	assert.Positive(t, report.Duration)
}
