package guardian

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Digest is an aggregate hash over every (path, content hash) pair of the snapshot.
// Two snapshots of an unchanged tree share a digest.
func (s *Snapshot) Digest() string {
	h := sha256.New()
	sep := []byte{0}
	if s != nil {
		for i := range s.Files {
			_, _ = io.WriteString(h, s.Files[i].Path)
			_, _ = h.Write(sep)
			_, _ = io.WriteString(h, s.Files[i].ContentHash)
			_, _ = h.Write(sep)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// WriteSnapshot stores snap as indented JSON at path, atomically.
func WriteSnapshot(path string, snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	return writeJSONAtomic(path, snap)
}

// ReadSnapshot loads a snapshot written by WriteSnapshot.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return &snap, nil
}

// WriteQualityReport stores report as indented JSON at path, atomically.
func WriteQualityReport(path string, report *QualityReport) error {
	if report == nil {
		return nil
	}
	return writeJSONAtomic(path, report)
}

// RenderPaths renders the compact routing index: one line per file with its purpose
// and up to five symbols.
func RenderPaths(snap *Snapshot) string {
	var sb strings.Builder
	sb.WriteString(pathsDigestPrefix + " ")
	sb.WriteString(snap.Digest())
	sb.WriteString("\n")
	sb.WriteString("# Generated: ")
	sb.WriteString(snap.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
	sb.WriteString("\n")
	sb.WriteString("# Regenerate: guardian scan\n")
	sb.WriteString("# Format: <path>\\t<purpose>\\t[symbols]\n")

	for _, rec := range snap.Files {
		sb.WriteString(rec.Path)
		sb.WriteString("\t")
		sb.WriteString(truncate(rec.Purpose, 80))
		if len(rec.Symbols) > 0 {
			symbols := rec.Symbols
			if len(symbols) > 5 {
				symbols = symbols[:5]
			}
			sb.WriteString("\t")
			sb.WriteString(strings.Join(symbols, ", "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes to a temp file, fsyncs it and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return nil
	}
	defer d.Close()
	return d.Sync()
}
