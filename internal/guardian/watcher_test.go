package guardian

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDebounce = 50 * time.Millisecond

type fakeSource struct {
	events chan FileEvent
	errs   chan error
	once   sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{events: make(chan FileEvent, 64), errs: make(chan error, 4)}
}

func (s *fakeSource) Events() <-chan FileEvent { return s.events }
func (s *fakeSource) Errors() <-chan error     { return s.errs }

func (s *fakeSource) Close() error {
	s.once.Do(func() {
		close(s.events)
		close(s.errs)
	})
	return nil
}

type watchHarness struct {
	root   string
	source *fakeSource
	w      *Watcher
	done   chan error
}

func testWatchOptions() Options {
	opts := DefaultOptions()
	opts.DebounceWindow = testDebounce
	return opts
}

func startWatcher(t *testing.T, root string, opts Options, scan ScanFunc) *watchHarness {
	t.Helper()
	source := newFakeSource()
	w, err := NewWatcher(root, opts, scan, source)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := &watchHarness{root: root, source: source, w: w, done: make(chan error, 1)}
	go func() { h.done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	return h
}

func (h *watchHarness) send(rel string, action ChangeAction) {
	h.source.events <- FileEvent{Path: filepath.Join(h.root, filepath.FromSlash(rel)), Action: action}
}

func (h *watchHarness) next(t *testing.T) ScanTrigger {
	t.Helper()
	select {
	case tr, ok := <-h.w.Triggers():
		require.True(t, ok, "trigger channel closed")
		return tr
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for scan trigger")
		return ScanTrigger{}
	}
}

func (h *watchHarness) expectQuiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case tr := <-h.w.Triggers():
		t.Fatalf("unexpected trigger: %+v", tr)
	case <-time.After(d):
	}
}

func changePaths(changes []Change) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.Path
	}
	return out
}

func noopScan(context.Context, *ChangeBatch) (*Snapshot, error) { return nil, nil }

func TestWatcherDebouncesBurstIntoOneScan(t *testing.T) {
	root := t.TempDir()
	var calls atomic.Int32
	h := startWatcher(t, root, testWatchOptions(), func(context.Context, *ChangeBatch) (*Snapshot, error) {
		calls.Add(1)
		return nil, nil
	})

	writeTree(t, root, map[string]string{"a.py": "a = 1\n", "b.py": "b = 1\n", "web/c.ts": "let c = 1;\n"})
	start := time.Now()
	h.send("a.py", ActionCreated)
	h.send("b.py", ActionCreated)
	h.send("a.py", ActionModified)
	h.send("web/c.ts", ActionCreated)

	tr := h.next(t)
	assert.GreaterOrEqual(t, time.Since(start), testDebounce)
	require.NoError(t, tr.Err)
	assert.Equal(t, 1, tr.Attempt)
	assert.Equal(t, []string{"a.py", "b.py", "web/c.ts"}, changePaths(tr.Batch))
	for _, c := range tr.Batch {
		assert.Equal(t, ActionCreated, c.Action, c.Path)
	}

	h.expectQuiet(t, 4*testDebounce)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatcherSuppressesNoOpModify(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"app.py": "x = 1\n"})
	h := startWatcher(t, root, testWatchOptions(), noopScan)

	h.send("app.py", ActionModified)
	h.expectQuiet(t, 4*testDebounce)

	writeTree(t, root, map[string]string{"app.py": "x = 2\n"})
	h.send("app.py", ActionModified)
	tr := h.next(t)
	require.Len(t, tr.Batch, 1)
	assert.Equal(t, Change{Path: "app.py", Action: ActionModified, Digest: hashBytes([]byte("x = 2\n"))}, tr.Batch[0])
}

func TestWatcherTreatsVanishedFileAsDeleted(t *testing.T) {
	root := t.TempDir()
	h := startWatcher(t, root, testWatchOptions(), noopScan)

	h.send("gone.py", ActionModified)
	tr := h.next(t)
	require.Len(t, tr.Batch, 1)
	assert.Equal(t, ActionDeleted, tr.Batch[0].Action)
}

func TestWatcherFiltersIrrelevantPaths(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".guardian/snapshot.json":   "{}",
		"node_modules/lib/index.js": "module.exports = 1;\n",
		"notes.log":                 "log\n",
		"app.py":                    "x = 1\n",
	})
	h := startWatcher(t, root, testWatchOptions(), noopScan)

	h.send(".guardian/snapshot.json", ActionModified)
	h.send("node_modules/lib/index.js", ActionCreated)
	h.send("notes.log", ActionCreated)
	h.source.events <- FileEvent{Path: filepath.Join(filepath.Dir(root), "outside.py"), Action: ActionCreated}
	h.source.events <- FileEvent{Path: root, Action: ActionModified}
	h.expectQuiet(t, 4*testDebounce)

	h.send("app.py", ActionCreated)
	tr := h.next(t)
	assert.Equal(t, []string{"app.py"}, changePaths(tr.Batch))
}

func TestWatcherSerializesScans(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.py": "a = 1\n", "b.py": "b = 1\n"})

	var calls, active, maxActive atomic.Int32
	started := make(chan []string, 4)
	release := make(chan struct{})
	h := startWatcher(t, root, testWatchOptions(), func(_ context.Context, batch *ChangeBatch) (*Snapshot, error) {
		calls.Add(1)
		n := active.Add(1)
		defer active.Add(-1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		started <- changePaths(batch.Changes())
		<-release
		return nil, nil
	})
	_, seeded := h.w.HashStore().Digest("a.py")
	require.True(t, seeded)

	writeTree(t, root, map[string]string{"b.py": "b = 2\n"})
	h.send("b.py", ActionModified)
	select {
	case paths := <-started:
		assert.Equal(t, []string{"b.py"}, paths)
	case <-time.After(2 * time.Second):
		t.Fatal("first scan never started")
	}

	// Two separate flushes land while the first scan is held.
	writeTree(t, root, map[string]string{"a.py": "a = 2\n"})
	h.send("a.py", ActionModified)
	time.Sleep(4 * testDebounce)

	require.NoError(t, os.Remove(filepath.Join(root, "a.py")))
	h.send("a.py", ActionDeleted)
	writeTree(t, root, map[string]string{"c.py": "c = 1\n"})
	h.send("c.py", ActionCreated)
	time.Sleep(4 * testDebounce)

	assert.Empty(t, started, "second scan started while the first was running")
	close(release)

	first := h.next(t)
	second := h.next(t)
	assert.Equal(t, []string{"b.py"}, changePaths(first.Batch))
	require.Equal(t, []string{"a.py", "c.py"}, changePaths(second.Batch))
	assert.Equal(t, ActionDeleted, second.Batch[0].Action, "newest change for a.py must win")
	assert.Equal(t, ActionCreated, second.Batch[1].Action)
	h.expectQuiet(t, 4*testDebounce)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(1), maxActive.Load())

	_, ok := h.w.HashStore().Digest("a.py")
	assert.False(t, ok, "deleted file must leave the hash store")
	digest, ok := h.w.HashStore().Digest("c.py")
	require.True(t, ok)
	assert.Equal(t, hashBytes([]byte("c = 1\n")), digest)
}

func TestWatcherRetriesFailedBatch(t *testing.T) {
	root := t.TempDir()
	opts := testWatchOptions()
	opts.MaxScanRetries = 3

	var calls atomic.Int32
	h := startWatcher(t, root, opts, func(context.Context, *ChangeBatch) (*Snapshot, error) {
		if calls.Add(1) <= 2 {
			return nil, errors.New("scanner busy")
		}
		return nil, nil
	})

	writeTree(t, root, map[string]string{"a.py": "a = 1\n"})
	h.send("a.py", ActionCreated)

	for attempt := 1; attempt <= 2; attempt++ {
		tr := h.next(t)
		require.Error(t, tr.Err)
		assert.Equal(t, attempt, tr.Attempt)
		assert.False(t, tr.Terminal)
		assert.Equal(t, []string{"a.py"}, changePaths(tr.Batch))
		_, ok := h.w.HashStore().Digest("a.py")
		assert.False(t, ok, "hash store must not change before a scan succeeds")
	}

	tr := h.next(t)
	require.NoError(t, tr.Err)
	assert.Equal(t, 3, tr.Attempt)
	assert.Equal(t, []string{"a.py"}, changePaths(tr.Batch))

	digest, ok := h.w.HashStore().Digest("a.py")
	require.True(t, ok)
	assert.Equal(t, hashBytes([]byte("a = 1\n")), digest)

	persisted, err := OpenHashStore(opts.StatePath(root, DefaultHashFile))
	require.NoError(t, err)
	persistedDigest, ok := persisted.Digest("a.py")
	require.True(t, ok)
	assert.Equal(t, digest, persistedDigest)
}

func TestWatcherGivesUpAfterMaxRetries(t *testing.T) {
	root := t.TempDir()
	opts := testWatchOptions()
	opts.MaxScanRetries = 1

	h := startWatcher(t, root, opts, func(context.Context, *ChangeBatch) (*Snapshot, error) {
		return nil, errors.New("broken")
	})

	writeTree(t, root, map[string]string{"a.py": "a = 1\n", "b.py": "b = 1\n"})
	h.send("a.py", ActionCreated)

	first := h.next(t)
	assert.Equal(t, 1, first.Attempt)
	assert.False(t, first.Terminal)

	second := h.next(t)
	assert.Equal(t, 2, second.Attempt)
	assert.True(t, second.Terminal)
	h.expectQuiet(t, 4*testDebounce)

	_, ok := h.w.HashStore().Digest("a.py")
	assert.False(t, ok)

	h.send("b.py", ActionCreated)
	fresh := h.next(t)
	assert.Equal(t, 1, fresh.Attempt)
	assert.Equal(t, []string{"b.py"}, changePaths(fresh.Batch))
}

func TestWatcherCommitsSnapshotDigests(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"old.py": "x = 1\n"})
	snap := &Snapshot{Files: []FileRecord{{Path: "new.py", ContentHash: "abc", Size: 3}}}
	h := startWatcher(t, root, testWatchOptions(), func(context.Context, *ChangeBatch) (*Snapshot, error) {
		return snap, nil
	})
	_, seeded := h.w.HashStore().Digest("old.py")
	require.True(t, seeded, "existing files are hashed when the watcher starts")

	writeTree(t, root, map[string]string{"new.py": "y = 1\n"})
	h.send("new.py", ActionCreated)
	tr := h.next(t)
	assert.Same(t, snap, tr.Snapshot)

	digest, ok := h.w.HashStore().Digest("new.py")
	require.True(t, ok)
	assert.Equal(t, "abc", digest)
	_, ok = h.w.HashStore().Digest("old.py")
	assert.False(t, ok)
}

func TestWatcherScanOnStart(t *testing.T) {
	root := t.TempDir()
	opts := testWatchOptions()
	opts.ScanOnStart = true

	h := startWatcher(t, root, opts, noopScan)
	tr := h.next(t)
	require.NoError(t, tr.Err)
	assert.Empty(t, tr.Batch)
	assert.Equal(t, 1, tr.Attempt)
}

func TestWatcherFailedInitialScanIsTerminal(t *testing.T) {
	root := t.TempDir()
	opts := testWatchOptions()
	opts.ScanOnStart = true

	var calls atomic.Int32
	h := startWatcher(t, root, opts, func(context.Context, *ChangeBatch) (*Snapshot, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("boom")
		}
		return nil, nil
	})

	tr := h.next(t)
	require.Error(t, tr.Err)
	assert.True(t, tr.Terminal)

	writeTree(t, root, map[string]string{"a.py": "a = 1\n"})
	h.send("a.py", ActionCreated)
	tr = h.next(t)
	require.NoError(t, tr.Err)
	assert.Equal(t, 1, tr.Attempt)
}

func TestWatcherRunStopsWhenSourceCloses(t *testing.T) {
	root := t.TempDir()
	source := newFakeSource()
	w, err := NewWatcher(root, testWatchOptions(), noopScan, source)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the source closed")
	}
	_, open := <-w.Triggers()
	assert.False(t, open)
	assert.Error(t, w.Run(context.Background()))
}

func TestWatcherRunReturnsContextError(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(root, testWatchOptions(), noopScan, newFakeSource())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Run(ctx), context.Canceled)
}

func TestNewWatcherValidatesArguments(t *testing.T) {
	root := t.TempDir()
	_, err := NewWatcher(root, testWatchOptions(), nil, newFakeSource())
	assert.Error(t, err)
	_, err = NewWatcher(root, testWatchOptions(), noopScan, nil)
	assert.Error(t, err)
	_, err = NewWatcher(filepath.Join(root, "missing"), testWatchOptions(), noopScan, newFakeSource())
	assert.ErrorIs(t, err, ErrInvalidRoot)
}

func TestFSNotifySourceReportsFilesInNewDirectories(t *testing.T) {
	root := t.TempDir()
	source, err := NewFSNotifySource(root, DefaultOptions())
	require.NoError(t, err)
	defer source.Close()

	dir := filepath.Join(root, "pkg")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	target := filepath.Join(dir, "new.py")
	require.NoError(t, os.WriteFile(target, []byte("x = 1\n"), 0o644))

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-source.Events():
			require.True(t, ok, "event channel closed")
			if ev.Path != target {
				continue
			}
			assert.Equal(t, ActionCreated, ev.Action)
			return
		case <-deadline:
			t.Fatal("no event for a file created in a new directory")
		}
	}
}

func TestNewFSNotifySourceInvalidRoot(t *testing.T) {
	_, err := NewFSNotifySource(filepath.Join(t.TempDir(), "missing"), DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidRoot)
}
