package guardian

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

const hashStoreVersion = 1

// HashEntry stores per-file metadata for incremental hashing.
type HashEntry struct {
	Path            string `json:"path"`
	Size            int64  `json:"size"`
	ModTimeUnixNano int64  `json:"modTimeUnixNano"`
	ContentHash     string `json:"contentHash"`
}

type hashStoreFile struct {
	Version int         `json:"version"`
	Entries []HashEntry `json:"entries"`
}

// HashStore maps relative paths to the last content digest seen for them.
// It is safe for concurrent use.
type HashStore struct {
	mu      sync.RWMutex
	path    string
	entries map[string]HashEntry
}

// NewHashStore returns an empty store persisted at path. An empty path keeps it in memory.
func NewHashStore(path string) *HashStore {
	return &HashStore{path: path, entries: make(map[string]HashEntry)}
}

// OpenHashStore loads the store at path. A missing, corrupt or outdated file
// yields an empty store.
func OpenHashStore(path string) (*HashStore, error) {
	store := NewHashStore(path)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, fmt.Errorf("read hash store: %w", err)
	}

	var file hashStoreFile
	if err := json.Unmarshal(data, &file); err != nil {
		return store, nil
	}
	if file.Version != hashStoreVersion {
		return store, nil
	}
	for _, entry := range file.Entries {
		if entry.Path == "" || entry.ContentHash == "" {
			continue
		}
		store.entries[entry.Path] = entry
	}
	return store, nil
}

// Digest returns the stored digest for path.
func (s *HashStore) Digest(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[path]
	return entry.ContentHash, ok
}

// Lookup returns the stored digest only when size and mtime still match.
func (s *HashStore) Lookup(path string, size, modTimeUnixNano int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[path]
	if !ok || entry.Size != size || entry.ModTimeUnixNano != modTimeUnixNano || entry.ContentHash == "" {
		return "", false
	}
	return entry.ContentHash, true
}

// Set records entry, replacing what was stored for its path.
func (s *HashStore) Set(entry HashEntry) {
	if entry.Path == "" {
		return
	}
	s.mu.Lock()
	s.entries[entry.Path] = entry
	s.mu.Unlock()
}

// Delete forgets path.
func (s *HashStore) Delete(path string) {
	s.mu.Lock()
	delete(s.entries, path)
	s.mu.Unlock()
}

// Len reports the number of tracked paths.
func (s *HashStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// SyncSnapshot replaces the store contents with the digests of snap.
func (s *HashStore) SyncSnapshot(snap *Snapshot) {
	if snap == nil {
		return
	}
	next := make(map[string]HashEntry, len(snap.Files))
	for _, rec := range snap.Files {
		if rec.ContentHash == "" {
			continue
		}
		next[rec.Path] = HashEntry{
			Path:            rec.Path,
			Size:            rec.Size,
			ModTimeUnixNano: rec.ModTime.UnixNano(),
			ContentHash:     rec.ContentHash,
		}
	}
	s.mu.Lock()
	s.entries = next
	s.mu.Unlock()
}

type hashJob struct {
	absPath string
	relPath string
	size    int64
	modTime int64
}

// Refresh brings the store in line with idx. Unchanged files keep their digest;
// the rest are hashed on a bounded worker pool. Files that vanish between the
// walk and the read, or cannot be read, are dropped.
func (s *HashStore) Refresh(ctx context.Context, idx *FileIndex, workers int) error {
	if idx == nil {
		return nil
	}

	next := make(map[string]HashEntry, len(idx.Files))
	jobs := make([]hashJob, 0)
	for _, rec := range idx.Files {
		modTime := rec.ModTime.UnixNano()
		if digest, ok := s.Lookup(rec.RelPath, rec.Size, modTime); ok {
			next[rec.RelPath] = HashEntry{Path: rec.RelPath, Size: rec.Size, ModTimeUnixNano: modTime, ContentHash: digest}
			continue
		}
		jobs = append(jobs, hashJob{absPath: rec.AbsPath, relPath: rec.RelPath, size: rec.Size, modTime: modTime})
	}

	results := make([]string, len(jobs))
	if err := hashMissingEntries(ctx, jobs, results, workers); err != nil {
		return err
	}
	for i, job := range jobs {
		if results[i] == "" {
			continue
		}
		next[job.relPath] = HashEntry{Path: job.relPath, Size: job.size, ModTimeUnixNano: job.modTime, ContentHash: results[i]}
	}

	s.mu.Lock()
	s.entries = next
	s.mu.Unlock()
	return nil
}

func hashMissingEntries(ctx context.Context, jobs []hashJob, results []string, workers int) error {
	if len(jobs) == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			digest, err := hashFileContents(jobs[i].absPath)
			if err != nil {
				// Unhashed files are dropped from the store and rehashed next time.
				if !os.IsNotExist(err) {
					slog.Debug("hash: skipping unreadable file", "path", jobs[i].relPath, "error", err)
				}
				return nil
			}
			results[i] = digest
			return nil
		})
	}
	return g.Wait()
}

// Save writes the store atomically. It is a no-op for in-memory stores.
func (s *HashStore) Save() error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()
	file := hashStoreFile{Version: hashStoreVersion, Entries: make([]HashEntry, 0, len(s.entries))}
	for _, entry := range s.entries {
		file.Entries = append(file.Entries, entry)
	}
	s.mu.RUnlock()

	sort.Slice(file.Entries, func(i, j int) bool {
		return file.Entries[i].Path < file.Entries[j].Path
	})
	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode hash store: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("write hash store: %w", err)
	}
	return nil
}

func hashFileContents(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
