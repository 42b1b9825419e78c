package guardian

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// IndexedFile describes a discovered file in the project tree.
type IndexedFile struct {
	AbsPath  string
	RelPath  string
	Size     int64
	ModTime  time.Time
	Category Category
	Language string
	IsTest   bool
}

// FileIndex is a deterministic listing of files under a project root.
type FileIndex struct {
	Root    string
	Files   []IndexedFile
	Skipped []*ScanError
}

// resolveRoot returns the absolute root or an error wrapping ErrInvalidRoot.
func resolveRoot(root string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
	}
	f, err := os.Open(absRoot)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
	}
	_ = f.Close()
	return absRoot, nil
}

// ignoreSet decides which directories are pruned from a walk.
type ignoreSet struct {
	names    map[string]struct{}
	stateDir string
}

func newIgnoreSet(opts Options) ignoreSet {
	names := make(map[string]struct{}, len(opts.IgnoreDirs))
	for _, name := range opts.IgnoreDirs {
		names[name] = struct{}{}
	}
	stateDir := ""
	if opts.StateDir != "" && !filepath.IsAbs(opts.StateDir) {
		stateDir = filepath.ToSlash(filepath.Clean(opts.StateDir))
	}
	return ignoreSet{names: names, stateDir: stateDir}
}

func (s ignoreSet) skipDir(relPath, name string) bool {
	if _, ok := s.names[name]; ok {
		return true
	}
	return s.stateDir != "" && relPath == s.stateDir
}

// containsIgnored reports whether any directory component of relPath is ignored.
func (s ignoreSet) containsIgnored(relPath string) bool {
	dir := filepath.ToSlash(filepath.Dir(relPath))
	if dir == "." {
		return false
	}
	parts := strings.Split(dir, "/")
	for i, part := range parts {
		if s.skipDir(strings.Join(parts[:i+1], "/"), part) {
			return true
		}
	}
	return false
}

// BuildFileIndex walks root once and captures every regular file outside the ignore set.
func BuildFileIndex(ctx context.Context, root string, opts Options) (*FileIndex, error) {
	opts = opts.withDefaults()
	absRoot, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}

	classify := newClassifier(opts)
	ignore := newIgnoreSet(opts)
	idx := &FileIndex{Root: absRoot}

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		relPath, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			relPath = path
		}
		relPath = filepath.ToSlash(relPath)

		if walkErr != nil {
			if path == absRoot {
				return fmt.Errorf("%w: %v", ErrInvalidRoot, walkErr)
			}
			slog.Debug("skip unreadable path", "path", relPath, "error", walkErr)
			idx.Skipped = append(idx.Skipped, &ScanError{Path: relPath, Op: "walk", Err: walkErr})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != absRoot && ignore.skipDir(relPath, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			idx.Skipped = append(idx.Skipped, &ScanError{Path: relPath, Op: "stat", Err: err})
			return nil
		}

		rec := IndexedFile{
			AbsPath:  path,
			RelPath:  relPath,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Category: classify.category(d.Name()),
		}
		if rec.Category == CategoryCode || rec.Category == CategoryOther {
			match, ok, err := detectLanguageForFile(path, relPath)
			if err != nil {
				slog.Debug("language detection failed", "path", relPath, "error", err)
			}
			if ok {
				rec.Language = match.ID
				rec.IsTest = match.IsTest
				rec.Category = CategoryCode
			}
		}

		idx.Files = append(idx.Files, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}

	sort.Slice(idx.Files, func(i, j int) bool {
		return idx.Files[i].RelPath < idx.Files[j].RelPath
	})
	sortScanErrors(idx.Skipped)

	return idx, nil
}

func sortScanErrors(errs []*ScanError) {
	sort.SliceStable(errs, func(i, j int) bool {
		return errs[i].Path < errs[j].Path
	})
}
