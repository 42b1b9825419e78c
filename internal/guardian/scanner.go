package guardian

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
)

// Scanner turns a project tree into a Snapshot.
type Scanner struct {
	opts     Options
	registry *StrategyRegistry
	hashes   *HashStore
	now      func() time.Time
}

// NewScanner returns a scanner using registry for symbol extraction. A nil
// registry selects DefaultStrategyRegistry.
func NewScanner(opts Options, registry *StrategyRegistry) *Scanner {
	if registry == nil {
		registry = DefaultStrategyRegistry()
	}
	return &Scanner{
		opts:     opts.withDefaults(),
		registry: registry,
		now:      time.Now,
	}
}

// WithHashStore lets the scanner reuse stored digests for files it does not read,
// such as binary assets and files above MaxFileBytes.
func (s *Scanner) WithHashStore(store *HashStore) *Scanner {
	s.hashes = store
	return s
}

// Options returns the effective scanner options.
func (s *Scanner) Options() Options { return s.opts }

type fileResult struct {
	record FileRecord
	ports  []int
	err    *ScanError
}

// Scan walks root and builds a snapshot. Only an invalid root or a cancelled
// context fail the scan; unreadable files are reported in Snapshot.Skipped.
func (s *Scanner) Scan(ctx context.Context, root string) (*Snapshot, error) {
	idx, err := BuildFileIndex(ctx, root, s.opts)
	if err != nil {
		return nil, err
	}

	results := make([]fileResult, len(idx.Files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.workerCount())
	for i := range idx.Files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.scanFile(idx.Files[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	signals := detectProjectSignals(idx.Root, idx)
	snap := &Snapshot{
		Root:         idx.Root,
		Timestamp:    s.now(),
		Identity:     signals.Identity,
		Files:        make([]FileRecord, 0, len(results)),
		TechStack:    signals.TechStack,
		Dependencies: signals.Dependencies,
		Ports:        make(map[int]string),
		EnvVars:      signals.EnvVars,
		RunCommands:  signals.RunCommands,
		Skipped:      append([]*ScanError(nil), idx.Skipped...),
	}

	// First mention in path order wins, then compose files fill the gaps.
	for _, res := range results {
		if res.err != nil {
			snap.Skipped = append(snap.Skipped, res.err)
			continue
		}
		snap.Files = append(snap.Files, res.record)
		for _, port := range res.ports {
			if _, ok := snap.Ports[port]; !ok {
				snap.Ports[port] = res.record.Path
			}
		}
	}
	for port, file := range signals.Ports {
		if _, ok := snap.Ports[port]; !ok {
			snap.Ports[port] = file
		}
	}
	sortScanErrors(snap.Skipped)

	slog.Debug("scan complete", "root", idx.Root, "files", len(snap.Files), "skipped", len(snap.Skipped))
	return snap, nil
}

func (s *Scanner) scanFile(rec IndexedFile) fileResult {
	out := FileRecord{
		Path:     rec.RelPath,
		Category: rec.Category,
		Language: rec.Language,
		Purpose:  inferPurpose(rec.RelPath, rec.Category),
		ModTime:  rec.ModTime,
		Size:     rec.Size,
		IsTest:   rec.IsTest,
	}

	_, isAsset := assetExtension(rec.RelPath)
	if isAsset || rec.Size > s.opts.MaxFileBytes {
		digest, err := s.digestWithoutReading(rec)
		if err != nil {
			return fileResult{err: &ScanError{Path: rec.RelPath, Op: "hash", Err: err}}
		}
		out.ContentHash = digest
		return fileResult{record: out}
	}

	content, err := os.ReadFile(rec.AbsPath)
	if err != nil {
		return fileResult{err: &ScanError{Path: rec.RelPath, Op: "read", Err: err}}
	}
	out.ContentHash = hashBytes(content)
	out.Size = int64(len(content))
	if out.Category != CategoryOther {
		out.Lines = countLines(content)
	}

	if out.Category == CategoryCode && out.Language != "" {
		symbols, err := s.registry.ExtractSymbols(out.Language, rec.RelPath, content)
		if err != nil {
			slog.Debug("symbol extraction failed", "path", rec.RelPath, "language", out.Language, "error", err)
		}
		out.Symbols = symbols
	}

	res := fileResult{record: out}
	if isPortSource(rec.RelPath) {
		res.ports = findPorts(content)
	}
	return res
}

func (s *Scanner) digestWithoutReading(rec IndexedFile) (string, error) {
	if s.hashes != nil {
		if digest, ok := s.hashes.Lookup(rec.RelPath, rec.Size, rec.ModTime.UnixNano()); ok {
			return digest, nil
		}
	}
	return hashFileContents(rec.AbsPath)
}

// countLines counts newline-terminated lines plus a trailing partial line.
func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte{'\n'})
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}
