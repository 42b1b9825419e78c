package guardian

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const pathsDigestPrefix = "# guardian-digest:"

// PipelineResult is what one pipeline run produced.
type PipelineResult struct {
	Snapshot *Snapshot
	Quality  *QualityReport
}

// Pipeline scans a root, analyzes the snapshot and writes both to the state
// directory for the rendering layer.
type Pipeline struct {
	root     string
	opts     Options
	scanner  *Scanner
	analyzer *QualityAnalyzer
	hashes   *HashStore
}

// NewPipeline prepares a pipeline for root with its persisted hash store.
func NewPipeline(root string, opts Options) (*Pipeline, error) {
	opts = opts.withDefaults()
	absRoot, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}
	hashes, err := OpenHashStore(opts.StatePath(absRoot, DefaultHashFile))
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		root:     absRoot,
		opts:     opts,
		scanner:  NewScanner(opts, nil).WithHashStore(hashes),
		analyzer: NewQualityAnalyzer(opts),
		hashes:   hashes,
	}, nil
}

// WithHashStore replaces the pipeline's hash store, typically with the one a
// Watcher keeps current. Call it before the pipeline runs.
func (p *Pipeline) WithHashStore(store *HashStore) *Pipeline {
	if store == nil {
		return p
	}
	p.hashes = store
	p.scanner.WithHashStore(store)
	return p
}

// Root returns the resolved project root.
func (p *Pipeline) Root() string { return p.root }

// Options returns the effective options.
func (p *Pipeline) Options() Options { return p.opts }

// Run regenerates every output and persists the hash store.
func (p *Pipeline) Run(ctx context.Context) (*PipelineResult, error) {
	res, err := p.run(ctx)
	if err != nil {
		return nil, err
	}
	p.hashes.SyncSnapshot(res.Snapshot)
	if err := p.hashes.Save(); err != nil {
		return nil, err
	}
	return res, nil
}

// EnsureUpToDate runs the pipeline only when the outputs are stale. The
// boolean reports whether anything was regenerated.
func (p *Pipeline) EnsureUpToDate(ctx context.Context) (*PipelineResult, bool, error) {
	stale, err := p.IsStale(ctx)
	if err != nil {
		return nil, false, err
	}
	if !stale {
		return nil, false, nil
	}
	res, err := p.Run(ctx)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

// ScanFunc adapts the pipeline for a Watcher. The watcher owns hash store
// persistence, so nothing is saved here.
func (p *Pipeline) ScanFunc() ScanFunc {
	return func(ctx context.Context, _ *ChangeBatch) (*Snapshot, error) {
		res, err := p.run(ctx)
		if err != nil {
			return nil, err
		}
		return res.Snapshot, nil
	}
}

func (p *Pipeline) run(ctx context.Context) (*PipelineResult, error) {
	snap, err := p.scanner.Scan(ctx, p.root)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	report, err := p.analyzer.AnalyzeSnapshot(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	if err := WriteSnapshot(p.opts.StatePath(p.root, p.opts.SnapshotFile), snap); err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}
	if err := writeFileAtomic(p.opts.StatePath(p.root, DefaultPathsFile), []byte(RenderPaths(snap))); err != nil {
		return nil, fmt.Errorf("write paths: %w", err)
	}
	if err := WriteQualityReport(p.opts.StatePath(p.root, p.opts.QualityFile), report); err != nil {
		return nil, fmt.Errorf("write quality report: %w", err)
	}
	return &PipelineResult{Snapshot: snap, Quality: report}, nil
}

// IsStale reports whether the tree changed since the paths index was written.
// Unchanged files reuse their stored digests, so a fresh tree is cheap to check.
func (p *Pipeline) IsStale(ctx context.Context) (bool, error) {
	existing, err := ReadPathsDigest(p.opts.StatePath(p.root, DefaultPathsFile))
	if err != nil {
		return false, fmt.Errorf("read existing digest: %w", err)
	}
	if existing == "" {
		return true, nil
	}
	idx, err := BuildFileIndex(ctx, p.root, p.opts)
	if err != nil {
		return false, err
	}
	if err := p.hashes.Refresh(ctx, idx, p.opts.workerCount()); err != nil {
		return false, fmt.Errorf("hash files: %w", err)
	}
	return existing != p.indexDigest(idx), nil
}

// indexDigest matches Snapshot.Digest for a snapshot of the same tree.
func (p *Pipeline) indexDigest(idx *FileIndex) string {
	h := sha256.New()
	sep := []byte{0}
	for _, rec := range idx.Files {
		digest, ok := p.hashes.Digest(rec.RelPath)
		if !ok {
			continue
		}
		_, _ = io.WriteString(h, rec.RelPath)
		_, _ = h.Write(sep)
		_, _ = io.WriteString(h, digest)
		_, _ = h.Write(sep)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ReadPathsDigest returns the digest recorded in the header of a paths index.
// A missing file or header yields "".
func ReadPathsDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for i := 0; i < 5 && scanner.Scan(); i++ {
		line := scanner.Text()
		if !strings.HasPrefix(line, pathsDigestPrefix) {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, pathsDigestPrefix))
		if len(fields) == 0 {
			return "", nil
		}
		for _, r := range fields[0] {
			if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
				return "", nil
			}
		}
		return fields[0], nil
	}
	return "", scanner.Err()
}
