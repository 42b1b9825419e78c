package guardian

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

var structureExtensions = map[string]struct{}{
	".py":  {},
	".js":  {},
	".jsx": {},
	".ts":  {},
	".tsx": {},
	".go":  {},
	".rs":  {},
	".sh":  {},
}

const (
	componentNamePattern = `^[A-Z][a-zA-Z0-9]*\.(jsx|tsx)$`
	testNamePattern      = `^test_[a-z][a-z0-9_]*\.(py|js|ts)$`
)

var (
	componentNameRE = regexp.MustCompile(componentNamePattern)
	testNameRE      = regexp.MustCompile(testNamePattern)

	pythonFuncBoundaryRE = regexp.MustCompile(`^\s*(?:async\s+)?def\s+(\w+)\s*\(`)
	jsFuncBoundaryRE     = regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?(?:async\s+)?(?:function|const|let|var)\s+(\w+)\s*(?:=\s*)?\(`)
	goFuncBoundaryRE     = regexp.MustCompile(`^func\s+(?:\([^)]*\)\s*)?(\w+)`)
	rustFuncBoundaryRE   = regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?(?:const\s+)?(?:async\s+)?(?:unsafe\s+)?fn\s+(\w+)`)
	shellFuncBoundaryRE  = regexp.MustCompile(`^\s*(?:function\s+)?([A-Za-z_][\w-]*)\s*\(\s*\)`)
)

var funcBoundaries = map[string]*regexp.Regexp{
	".py":  pythonFuncBoundaryRE,
	".js":  jsFuncBoundaryRE,
	".jsx": jsFuncBoundaryRE,
	".ts":  jsFuncBoundaryRE,
	".tsx": jsFuncBoundaryRE,
	".go":  goFuncBoundaryRE,
	".rs":  rustFuncBoundaryRE,
	".sh":  shellFuncBoundaryRE,
}

func checkStructure(absRoot string, files []sourceFile, opts Options) []Finding {
	findings := missingDocs(absRoot, opts.RequiredDocs)
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.relPath))
		if _, ok := structureExtensions[ext]; !ok {
			continue
		}
		findings = append(findings, namingFindings(f.relPath, ext)...)
		if !f.readOK {
			continue
		}
		lines := countLines(f.content)
		if lines > opts.OversizedFileLines {
			findings = append(findings, Finding{
				Kind:            KindOversizedFile,
				Location:        Location{Path: f.relPath},
				Severity:        SeverityWarning,
				Confidence:      1,
				Rationale:       fmt.Sprintf("File has %d lines (max: %d)", lines, opts.OversizedFileLines),
				SuggestedAction: "Consider splitting this file into smaller modules",
			})
		}
		findings = append(findings, oversizedFunctions(f, ext, lines, opts.OversizedFunctionLines)...)
	}
	return findings
}

func missingDocs(absRoot string, docs []string) []Finding {
	findings := make([]Finding, 0)
	for _, doc := range docs {
		if _, err := os.Stat(filepath.Join(absRoot, filepath.FromSlash(doc))); err == nil {
			continue
		}
		findings = append(findings, Finding{
			Kind:            KindMissingDoc,
			Location:        Location{Path: doc},
			Severity:        SeverityWarning,
			Confidence:      1,
			Rationale:       fmt.Sprintf("Required documentation '%s' is missing", doc),
			SuggestedAction: fmt.Sprintf("Create %s to document your project", doc),
		})
	}
	return findings
}

// oversizedFunctions measures each function from its definition line to the
// next definition, or to the end of the file for the last one. Nested and
// decorated definitions make the spans approximate.
func oversizedFunctions(f sourceFile, ext string, totalLines, limit int) []Finding {
	re, ok := funcBoundaries[ext]
	if !ok {
		return nil
	}
	findings := make([]Finding, 0)
	report := func(name string, start, end int) {
		span := end - start
		if span <= limit {
			return
		}
		findings = append(findings, Finding{
			Kind:            KindOversizedFunction,
			Location:        Location{Path: f.relPath, Line: start + 1},
			Severity:        SeverityInfo,
			Name:            name,
			Confidence:      0.5,
			Rationale:       fmt.Sprintf("Function '%s' has %d lines (max: %d)", name, span, limit),
			SuggestedAction: "Consider breaking this function into smaller functions",
		})
	}

	current, start := "", 0
	for i, line := range strings.Split(string(f.content), "\n") {
		m := re.FindStringSubmatch(line)
		if m == nil || isShellKeyword(ext, m[1]) {
			continue
		}
		if current != "" {
			report(current, start, i)
		}
		current, start = m[1], i
	}
	if current != "" {
		report(current, start, totalLines)
	}
	return findings
}

func isShellKeyword(ext, name string) bool {
	if ext != ".sh" {
		return false
	}
	switch name {
	case "if", "then", "else", "elif", "fi", "for", "while", "until", "do", "done", "case", "esac":
		return true
	}
	return false
}

func namingFindings(relPath, ext string) []Finding {
	name := path.Base(relPath)
	parent := path.Base(path.Dir(relPath))
	findings := make([]Finding, 0)

	if parent == "components" || parent == "component" {
		if !componentNameRE.MatchString(name) {
			findings = append(findings, Finding{
				Kind:            KindNamingViolation,
				Location:        Location{Path: relPath},
				Severity:        SeverityInfo,
				Name:            name,
				Confidence:      0.8,
				Rationale:       "Component file should follow PascalCase naming",
				SuggestedAction: "Rename to follow pattern: " + componentNamePattern,
			})
		}
	}

	if strings.Contains(parent, "test") || strings.HasPrefix(name, "test") {
		switch ext {
		case ".py", ".js", ".ts":
			if !testNameRE.MatchString(name) {
				findings = append(findings, Finding{
					Kind:            KindNamingViolation,
					Location:        Location{Path: relPath},
					Severity:        SeverityInfo,
					Name:            name,
					Confidence:      0.8,
					Rationale:       "Test file should start with 'test_'",
					SuggestedAction: "Rename to follow pattern: " + testNamePattern,
				})
			}
		}
	}
	return findings
}
