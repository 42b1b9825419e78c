package guardian

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// FindingKind names a quality heuristic.
type FindingKind string

const (
	KindUnusedImport            FindingKind = "unused_import"
	KindUncalledPrivateFunction FindingKind = "uncalled_private_function"
	KindDuplicateFilePair       FindingKind = "duplicate_file_pair"
	KindOversizedFile           FindingKind = "oversized_file"
	KindOversizedFunction       FindingKind = "oversized_function"
	KindNamingViolation         FindingKind = "naming_violation"
	KindMissingDoc              FindingKind = "missing_doc"
)

// Severity weights structure findings in the health score.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Location points at a file and a 1-based line. Line 0 means the whole file.
type Location struct {
	Path string `json:"path"`
	Line int    `json:"line,omitempty"`
}

// Finding is one quality observation. Findings are heuristic.
type Finding struct {
	Kind            FindingKind `json:"kind"`
	Location        Location    `json:"location"`
	Severity        Severity    `json:"severity"`
	Name            string      `json:"name,omitempty"`
	Confidence      float64     `json:"confidence"`
	Rationale       string      `json:"rationale"`
	SuggestedAction string      `json:"suggestedAction"`
	OtherPath       string      `json:"otherPath,omitempty"`
	Similarity      float64     `json:"similarity,omitempty"`
	DiffExcerpt     string      `json:"diffExcerpt,omitempty"`
}

// QualitySummary aggregates a report.
type QualitySummary struct {
	TotalIssues    int `json:"totalIssues"`
	Critical       int `json:"critical"`
	Warnings       int `json:"warnings"`
	DeadCodeFiles  int `json:"deadCodeFiles"`
	DuplicatePairs int `json:"duplicatePairs"`
	ActiveFiles    int `json:"activeFiles"`
	RecentFiles    int `json:"recentFiles"`
	OldFiles       int `json:"oldFiles"`
}

// QualityReport is the result of one analysis run.
type QualityReport struct {
	Root        string         `json:"root"`
	GeneratedAt time.Time      `json:"generatedAt"`
	DeadCode    []Finding      `json:"deadCode"`
	Duplicates  []Finding      `json:"duplicates"`
	Structure   []Finding      `json:"structure"`
	Summary     QualitySummary `json:"summary"`
	HealthScore int            `json:"healthScore"`
}

// Findings returns every finding of the report in one sorted list.
func (r *QualityReport) Findings() []Finding {
	if r == nil {
		return nil
	}
	all := make([]Finding, 0, len(r.DeadCode)+len(r.Duplicates)+len(r.Structure))
	all = append(all, r.DeadCode...)
	all = append(all, r.Duplicates...)
	all = append(all, r.Structure...)
	sortFindings(all)
	return all
}

// QualityAnalyzer runs the dead code, duplicate and structure heuristics.
type QualityAnalyzer struct {
	opts Options
	now  func() time.Time
}

// NewQualityAnalyzer returns an analyzer configured by opts.
func NewQualityAnalyzer(opts Options) *QualityAnalyzer {
	return &QualityAnalyzer{opts: opts.withDefaults(), now: time.Now}
}

// sourceFile is a file handed to the heuristics with its content.
type sourceFile struct {
	relPath     string
	absPath     string
	modTime     time.Time
	contentHash string
	content     []byte
	readOK      bool
}

// Analyze walks root with the scanner's ignore set and analyzes every file found.
func (a *QualityAnalyzer) Analyze(ctx context.Context, root string) (*QualityReport, error) {
	idx, err := BuildFileIndex(ctx, root, a.opts)
	if err != nil {
		return nil, err
	}
	files := make([]sourceFile, 0, len(idx.Files))
	for _, rec := range idx.Files {
		files = append(files, sourceFile{relPath: rec.RelPath, absPath: rec.AbsPath, modTime: rec.ModTime})
	}
	return a.analyze(ctx, idx.Root, files)
}

// AnalyzeSnapshot analyzes the files listed in snap. Content is re-read from disk;
// snapshot digests are used to short-circuit identical pairs.
func (a *QualityAnalyzer) AnalyzeSnapshot(ctx context.Context, snap *Snapshot) (*QualityReport, error) {
	if snap == nil {
		return nil, errors.New("missing snapshot")
	}
	absRoot, err := resolveRoot(snap.Root)
	if err != nil {
		return nil, err
	}
	files := make([]sourceFile, 0, len(snap.Files))
	for _, rec := range snap.Files {
		files = append(files, sourceFile{
			relPath:     rec.Path,
			absPath:     filepath.Join(absRoot, filepath.FromSlash(rec.Path)),
			modTime:     rec.ModTime,
			contentHash: rec.ContentHash,
		})
	}
	return a.analyze(ctx, absRoot, files)
}

func (a *QualityAnalyzer) analyze(ctx context.Context, absRoot string, files []sourceFile) (*QualityReport, error) {
	if err := a.readSources(ctx, files); err != nil {
		return nil, err
	}

	report := &QualityReport{
		Root:        absRoot,
		GeneratedAt: a.now(),
		DeadCode:    findDeadCode(files),
		Duplicates:  findDuplicates(files, a.opts.DuplicateThreshold),
		Structure:   checkStructure(absRoot, files, a.opts),
	}
	sortFindings(report.DeadCode)
	sortFindings(report.Duplicates)
	sortFindings(report.Structure)

	report.Summary = summarize(report, files, report.GeneratedAt)
	report.HealthScore = HealthScore(report.DeadCode, report.Duplicates, report.Structure)
	return report, nil
}

// readSources loads the content of every file a heuristic looks at. Unreadable
// files are left out silently.
func (a *QualityAnalyzer) readSources(ctx context.Context, files []sourceFile) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.workerCount())
	for i := range files {
		if !needsContent(files[i].relPath) {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			info, err := os.Stat(files[i].absPath)
			if err == nil && info.Size() > a.opts.MaxFileBytes {
				return nil
			}
			content, err := os.ReadFile(files[i].absPath)
			if err != nil {
				slog.Debug("quality: skip unreadable file", "path", files[i].relPath, "error", err)
				return nil
			}
			files[i].content = content
			files[i].readOK = true
			if files[i].contentHash == "" {
				files[i].contentHash = hashBytes(content)
			}
			return nil
		})
	}
	return g.Wait()
}

func needsContent(relPath string) bool {
	ext := strings.ToLower(filepath.Ext(relPath))
	if _, ok := deadCodeExtensions[ext]; ok {
		return true
	}
	if _, ok := duplicateExtensions[ext]; ok {
		return true
	}
	_, ok := structureExtensions[ext]
	return ok
}

// HealthScore is 100 minus 2 per dead code finding, 5 per duplicate pair and
// 10, 3 or 1 per error, warning or info structure finding, clamped to [0, 100].
func HealthScore(deadCode, duplicates, structure []Finding) int {
	score := 100
	score -= 2 * len(deadCode)
	score -= 5 * len(duplicates)
	for _, f := range structure {
		switch f.Severity {
		case SeverityError:
			score -= 10
		case SeverityWarning:
			score -= 3
		default:
			score -= 1
		}
	}
	return max(0, min(100, score))
}

func summarize(report *QualityReport, files []sourceFile, now time.Time) QualitySummary {
	summary := QualitySummary{
		TotalIssues:    len(report.DeadCode) + len(report.Duplicates) + len(report.Structure),
		DuplicatePairs: len(report.Duplicates),
	}
	for _, f := range report.Structure {
		switch f.Severity {
		case SeverityError:
			summary.Critical++
		case SeverityWarning:
			summary.Warnings++
		}
	}
	deadFiles := make(map[string]struct{})
	for _, f := range report.DeadCode {
		deadFiles[f.Location.Path] = struct{}{}
	}
	summary.DeadCodeFiles = len(deadFiles)

	for _, f := range files {
		if f.modTime.IsZero() {
			continue
		}
		age := now.Sub(f.modTime)
		switch {
		case age < 7*24*time.Hour:
			summary.ActiveFiles++
		case age < 30*24*time.Hour:
			summary.RecentFiles++
		default:
			summary.OldFiles++
		}
	}
	return summary
}

func sortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Location.Path != b.Location.Path {
			return a.Location.Path < b.Location.Path
		}
		if a.Location.Line != b.Location.Line {
			return a.Location.Line < b.Location.Line
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.OtherPath != b.OtherPath {
			return a.OtherPath < b.OtherPath
		}
		return a.Name < b.Name
	})
}
