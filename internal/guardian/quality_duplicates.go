package guardian

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

var duplicateExtensions = map[string]struct{}{
	".py":   {},
	".js":   {},
	".jsx":  {},
	".ts":   {},
	".tsx":  {},
	".css":  {},
	".scss": {},
}

const maxDiffExcerptLines = 24

// findDuplicates compares every pair of files sharing an extension and reports
// pairs at or above threshold. Empty files never pair.
func findDuplicates(files []sourceFile, threshold float64) []Finding {
	byExt := make(map[string][]int)
	exts := make([]string, 0)
	for i, f := range files {
		if !f.readOK || len(bytes.TrimSpace(f.content)) == 0 {
			continue
		}
		ext := strings.ToLower(filepath.Ext(f.relPath))
		if _, ok := duplicateExtensions[ext]; !ok {
			continue
		}
		if _, seen := byExt[ext]; !seen {
			exts = append(exts, ext)
		}
		byExt[ext] = append(byExt[ext], i)
	}

	findings := make([]Finding, 0)
	for _, ext := range exts {
		group := byExt[ext]
		sets := make([]map[string]struct{}, len(group))
		for gi, fi := range group {
			sets[gi] = lineSet(files[fi].content)
		}
		for a := 0; a < len(group); a++ {
			for b := a + 1; b < len(group); b++ {
				left, right := files[group[a]], files[group[b]]
				similarity := 1.0
				if left.contentHash != right.contentHash {
					similarity = jaccard(sets[a], sets[b])
				}
				if similarity < threshold {
					continue
				}
				finding := Finding{
					Kind:            KindDuplicateFilePair,
					Location:        Location{Path: left.relPath},
					Severity:        SeverityWarning,
					OtherPath:       right.relPath,
					Similarity:      similarity,
					Confidence:      similarity,
					Rationale:       fmt.Sprintf("Files are %.1f%% similar", similarity*100),
					SuggestedAction: suggestMerge(similarity),
				}
				if similarity < 1 {
					finding.DiffExcerpt = diffExcerpt(left, right)
				}
				findings = append(findings, finding)
			}
		}
	}
	return findings
}

// SimilarityOf returns the duplicate similarity of two contents: 1 when identical,
// otherwise the Jaccard index of their distinct lines.
func SimilarityOf(a, b []byte) float64 {
	if bytes.Equal(a, b) {
		return 1
	}
	return jaccard(lineSet(a), lineSet(b))
}

// lineSet returns the distinct lines of content. A trailing newline does not
// add an empty line.
func lineSet(content []byte) map[string]struct{} {
	text := strings.TrimSuffix(string(content), "\n")
	lines := strings.Split(text, "\n")
	set := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		set[strings.TrimSuffix(line, "\r")] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	common := 0
	for line := range a {
		if _, ok := b[line]; ok {
			common++
		}
	}
	union := len(a) + len(b) - common
	if union == 0 {
		return 0
	}
	return float64(common) / float64(union)
}

func suggestMerge(similarity float64) string {
	switch {
	case similarity >= 0.95:
		return "Files are nearly identical. Consider removing one and using a single file."
	case similarity >= 0.8:
		return "Files are very similar. Consider refactoring common code into a shared module."
	default:
		return "Files share common code. Extract shared functionality into utilities."
	}
}

func diffExcerpt(left, right sourceFile) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(left.content)),
		B:        difflib.SplitLines(string(right.content)),
		FromFile: left.relPath,
		ToFile:   right.relPath,
		Context:  1,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) > maxDiffExcerptLines {
		lines = append(lines[:maxDiffExcerptLines], fmt.Sprintf("... %d more lines", len(lines)-maxDiffExcerptLines))
	}
	return strings.Join(lines, "\n")
}
