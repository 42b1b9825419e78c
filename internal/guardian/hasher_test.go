package guardian

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenHashStoreMissingOrCorruptIsEmpty(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenHashStore(filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("OpenHashStore(missing) failed: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("missing store has %d entries", store.Len())
	}

	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err = OpenHashStore(corrupt)
	if err != nil {
		t.Fatalf("OpenHashStore(corrupt) failed: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("corrupt store has %d entries", store.Len())
	}

	outdated := filepath.Join(dir, "outdated.json")
	if err := os.WriteFile(outdated, []byte(`{"version":99,"entries":[{"path":"a","contentHash":"x"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err = OpenHashStore(outdated)
	if err != nil {
		t.Fatalf("OpenHashStore(outdated) failed: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("outdated store has %d entries", store.Len())
	}
}

func TestHashStoreSaveAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "hashes.json")
	store := NewHashStore(path)
	store.Set(HashEntry{Path: "b.py", Size: 2, ModTimeUnixNano: 20, ContentHash: "bb"})
	store.Set(HashEntry{Path: "a.py", Size: 1, ModTimeUnixNano: 10, ContentHash: "aa"})
	store.Set(HashEntry{ContentHash: "ignored"})
	if err := store.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reopened, err := OpenHashStore(path)
	if err != nil {
		t.Fatalf("OpenHashStore failed: %v", err)
	}
	if reopened.Len() != 2 {
		t.Fatalf("reopened store has %d entries, want 2", reopened.Len())
	}
	if digest, ok := reopened.Lookup("a.py", 1, 10); !ok || digest != "aa" {
		t.Errorf("Lookup(a.py) = %q, %v", digest, ok)
	}
	if _, ok := reopened.Lookup("a.py", 1, 11); ok {
		t.Error("Lookup should miss when mtime differs")
	}
	if _, ok := reopened.Lookup("a.py", 3, 10); ok {
		t.Error("Lookup should miss when size differs")
	}

	reopened.Delete("a.py")
	if _, ok := reopened.Digest("a.py"); ok {
		t.Error("Digest should miss after Delete")
	}
}

func TestInMemoryHashStoreSaveIsNoop(t *testing.T) {
	store := NewHashStore("")
	store.Set(HashEntry{Path: "a", ContentHash: "x"})
	if err := store.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
}

func TestHashStoreRefreshReusesUnchangedDigests(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.py": "print('a')\n",
		"b.py": "print('b')\n",
	})

	idx, err := BuildFileIndex(context.Background(), root, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	store := NewHashStore("")
	if err := store.Refresh(context.Background(), idx, 2); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	want := hashBytes([]byte("print('a')\n"))
	if digest, ok := store.Digest("a.py"); !ok || digest != want {
		t.Fatalf("Digest(a.py) = %q, %v; want %q", digest, ok, want)
	}

	// A planted digest survives while size and mtime are unchanged.
	aRec := idx.Files[0]
	store.Set(HashEntry{Path: aRec.RelPath, Size: aRec.Size, ModTimeUnixNano: aRec.ModTime.UnixNano(), ContentHash: "cached"})
	if err := store.Refresh(context.Background(), idx, 2); err != nil {
		t.Fatal(err)
	}
	if digest, _ := store.Digest("a.py"); digest != "cached" {
		t.Errorf("Digest(a.py) = %q, want reused %q", digest, "cached")
	}

	// Touching the file forces a rehash.
	later := aRec.ModTime.Add(time.Minute)
	if err := os.Chtimes(aRec.AbsPath, later, later); err != nil {
		t.Fatal(err)
	}
	idx, err = BuildFileIndex(context.Background(), root, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Refresh(context.Background(), idx, 2); err != nil {
		t.Fatal(err)
	}
	if digest, _ := store.Digest("a.py"); digest != want {
		t.Errorf("Digest(a.py) = %q after touch, want %q", digest, want)
	}
}

func TestHashStoreRefreshDropsVanishedFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.py": "x = 1\n", "b.py": "y = 2\n"})

	idx, err := BuildFileIndex(context.Background(), root, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(root, "b.py")); err != nil {
		t.Fatal(err)
	}

	store := NewHashStore("")
	if err := store.Refresh(context.Background(), idx, 1); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("store has %d entries, want 1", store.Len())
	}
	if _, ok := store.Digest("b.py"); ok {
		t.Error("vanished file should not be stored")
	}
}

func TestHashStoreRefreshSkipsUnreadableFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.py": "x = 1\n", "b.py": "y = 2\n"})

	idx, err := BuildFileIndex(context.Background(), root, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	// Opening b.py still succeeds but reading it fails with EISDIR.
	bad := filepath.Join(root, "b.py")
	if err := os.Remove(bad); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(bad, 0o755); err != nil {
		t.Fatal(err)
	}

	store := NewHashStore("")
	if err := store.Refresh(context.Background(), idx, 2); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if _, ok := store.Digest("b.py"); ok {
		t.Error("unreadable file should not be stored")
	}
	if digest, ok := store.Digest("a.py"); !ok || digest != hashBytes([]byte("x = 1\n")) {
		t.Errorf("Digest(a.py) = %q, %v", digest, ok)
	}
}

func TestHashStoreSyncSnapshot(t *testing.T) {
	store := NewHashStore("")
	store.Set(HashEntry{Path: "stale.py", ContentHash: "old"})
	store.SyncSnapshot(&Snapshot{Files: []FileRecord{
		{Path: "a.py", ContentHash: "aa", Size: 3},
		{Path: "skipped.py"},
	}})

	if store.Len() != 1 {
		t.Fatalf("store has %d entries, want 1", store.Len())
	}
	if digest, _ := store.Digest("a.py"); digest != "aa" {
		t.Errorf("Digest(a.py) = %q, want aa", digest)
	}
	store.SyncSnapshot(nil)
	if store.Len() != 1 {
		t.Error("SyncSnapshot(nil) should leave the store untouched")
	}
}
