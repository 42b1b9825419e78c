package guardian

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineRunWritesOutputs(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"README.md":  "# Demo\n",
		"app.py":     "import os\n\ndef serve():\n    return os.getcwd()\n",
		"web/app.ts": "export function boot() {}\n",
	})

	p, err := NewPipeline(root, DefaultOptions())
	require.NoError(t, err)
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Snapshot)
	require.NotNil(t, res.Quality)
	assert.Equal(t, 100, res.Quality.HealthScore)

	opts := p.Options()
	snap, err := ReadSnapshot(opts.StatePath(p.Root(), opts.SnapshotFile))
	require.NoError(t, err)
	assert.Equal(t, res.Snapshot.Paths(), snap.Paths())

	digest, err := ReadPathsDigest(opts.StatePath(p.Root(), DefaultPathsFile))
	require.NoError(t, err)
	assert.Equal(t, res.Snapshot.Digest(), digest)

	for _, name := range []string{opts.QualityFile, DefaultHashFile} {
		_, err := os.Stat(opts.StatePath(p.Root(), name))
		assert.NoError(t, err, name)
	}
	assert.NotContains(t, snap.Paths(), ".guardian/snapshot.json")
}

func TestPipelineStaleness(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"app.py": "x = 1\n"})

	p, err := NewPipeline(root, DefaultOptions())
	require.NoError(t, err)

	stale, err := p.IsStale(context.Background())
	require.NoError(t, err)
	assert.True(t, stale, "no outputs yet")

	res, generated, err := p.EnsureUpToDate(context.Background())
	require.NoError(t, err)
	assert.True(t, generated)
	require.NotNil(t, res)

	res, generated, err = p.EnsureUpToDate(context.Background())
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Nil(t, res)

	// A fresh pipeline reads the persisted digests and agrees.
	reopened, err := NewPipeline(root, DefaultOptions())
	require.NoError(t, err)
	stale, err = reopened.IsStale(context.Background())
	require.NoError(t, err)
	assert.False(t, stale)

	path := filepath.Join(root, "app.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 2\n"), 0o644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))
	stale, err = reopened.IsStale(context.Background())
	require.NoError(t, err)
	assert.True(t, stale, "content changed")

	_, err = reopened.Run(context.Background())
	require.NoError(t, err)
	writeTree(t, root, map[string]string{"extra.py": "y = 1\n"})
	stale, err = reopened.IsStale(context.Background())
	require.NoError(t, err)
	assert.True(t, stale, "file added")
}

func TestPipelineScanFuncLeavesHashStoreUnsaved(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"app.py": "x = 1\n"})

	p, err := NewPipeline(root, DefaultOptions())
	require.NoError(t, err)
	snap, err := p.ScanFunc()(context.Background(), NewChangeBatch())
	require.NoError(t, err)
	assert.Equal(t, []string{"app.py"}, snap.Paths())

	_, err = os.Stat(p.Options().StatePath(p.Root(), DefaultHashFile))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(p.Options().StatePath(p.Root(), p.Options().SnapshotFile))
	assert.NoError(t, err)
}

func TestPipelineWithHashStoreSharesDigests(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"app.py": "x = 1\n"})

	p, err := NewPipeline(root, DefaultOptions())
	require.NoError(t, err)
	shared := NewHashStore("")
	assert.Same(t, p, p.WithHashStore(shared))
	assert.Same(t, p, p.WithHashStore(nil))

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	rec, ok := res.Snapshot.File("app.py")
	require.True(t, ok)
	digest, ok := shared.Digest("app.py")
	require.True(t, ok, "run must sync the shared store")
	assert.Equal(t, rec.ContentHash, digest)
}

func TestNewPipelineInvalidRoot(t *testing.T) {
	_, err := NewPipeline(filepath.Join(t.TempDir(), "missing"), DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidRoot)
}

func TestReadPathsDigest(t *testing.T) {
	dir := t.TempDir()

	digest, err := ReadPathsDigest(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, digest)

	tests := map[string]string{
		"# guardian-digest: abc123\nfile\n":          "abc123",
		"# Generated: now\n# guardian-digest: ff\n": "ff",
		"# guardian-digest: not-hex\n":              "",
		"# guardian-digest:\n":                      "",
		"app.py\tentry-point\n":                     "",
	}
	for content, want := range tests {
		path := filepath.Join(dir, "paths")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		digest, err := ReadPathsDigest(path)
		require.NoError(t, err)
		assert.Equal(t, want, digest, content)
	}
}

func TestRenderPaths(t *testing.T) {
	snap := &Snapshot{
		Timestamp: time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC),
		Files: []FileRecord{
			{Path: "app.py", Purpose: "entry-point", Symbols: []string{"a", "b", "c", "d", "e", "f"}, ContentHash: "1"},
			{Path: "README.md", Purpose: "documentation", ContentHash: "2"},
			{Path: "long.py", Purpose: strings.Repeat("p", 100), ContentHash: "3"},
		},
	}

	lines := strings.Split(strings.TrimSuffix(RenderPaths(snap), "\n"), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "# guardian-digest: "+snap.Digest(), lines[0])
	assert.Equal(t, "# Generated: 2025-05-06 07:08:09 UTC", lines[1])
	assert.Equal(t, "app.py\tentry-point\ta, b, c, d, e", lines[4])
	assert.Equal(t, "README.md\tdocumentation", lines[5])
	assert.Equal(t, "long.py\t"+strings.Repeat("p", 77)+"...", lines[6])
}

func TestPipelineDrivesWatcherEndToEnd(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"app.py": "x = 1\n"})
	opts := DefaultOptions()
	opts.DebounceWindow = testDebounce

	p, err := NewPipeline(root, opts)
	require.NoError(t, err)
	w, err := OpenWatcher(p.Root(), opts, p.ScanFunc())
	require.NoError(t, err)
	p.WithHashStore(w.HashStore())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
		_ = w.Close()
	}()

	writeTree(t, root, map[string]string{"lib/util.py": "def helper():\n    return 1\n"})

	deadline := time.After(5 * time.Second)
	for {
		select {
		case tr := <-w.Triggers():
			require.NoError(t, tr.Err)
			rec, ok := tr.Snapshot.File("lib/util.py")
			if !ok {
				continue
			}
			assert.Equal(t, []string{"helper"}, rec.Symbols)
			digest, ok := w.HashStore().Digest("lib/util.py")
			require.True(t, ok)
			assert.Equal(t, rec.ContentHash, digest)
			return
		case <-deadline:
			t.Fatal("watcher never produced a snapshot with the new file")
		}
	}
}
