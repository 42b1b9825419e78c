package guardian

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	unusedImportConfidence   = 0.7
	uncalledFuncConfidence   = 0.6
	deadCodeSuggestRemove    = "Remove the import if nothing needs it"
	deadCodeSuggestRemoveFun = "Remove the function or call it where intended"
)

var deadCodeExtensions = map[string]struct{}{
	".py":  {},
	".js":  {},
	".jsx": {},
	".ts":  {},
	".tsx": {},
}

var (
	pythonImportRE      = regexp.MustCompile(`^import\s+([\w.]+(?:\s+as\s+\w+)?(?:\s*,\s*[\w.]+(?:\s+as\s+\w+)?)*)`)
	pythonFromImportRE  = regexp.MustCompile(`^from\s+\S+\s+import\s+\(?\s*(\w+(?:\s+as\s+\w+)?(?:\s*,\s*\w+(?:\s+as\s+\w+)?)*)`)
	pythonPrivateFuncRE = regexp.MustCompile(`^\s*(?:async\s+)?def\s+(_\w+)\s*\(`)

	jsDefaultImportRE = regexp.MustCompile(`^import\s+(\w+)\s*(?:,|from\b)`)
	jsNamedImportRE   = regexp.MustCompile(`^import\s+(?:\w+\s*,\s*)?(?:type\s+)?\{([^}]*)\}`)
	jsNamespaceImport = regexp.MustCompile(`^import\s+\*\s+as\s+(\w+)`)
	jsPrivateFuncRE   = regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?(?:function\s*\*?\s*(_\w+)\s*\(|(?:const|let|var)\s+(_\w+)\s*=\s*(?:async\s*)?(?:function\b|\([^)]*\)\s*=>|\w+\s*=>))`)
)

type boundName struct {
	name string
	line int
}

func findDeadCode(files []sourceFile) []Finding {
	findings := make([]Finding, 0)
	for _, f := range files {
		if !f.readOK {
			continue
		}
		ext := strings.ToLower(filepath.Ext(f.relPath))
		if _, ok := deadCodeExtensions[ext]; !ok {
			continue
		}
		lines := strings.Split(string(f.content), "\n")
		if ext == ".py" {
			findings = append(findings, pythonDeadCode(f.relPath, lines)...)
		} else {
			findings = append(findings, jsDeadCode(f.relPath, lines)...)
		}
	}
	return findings
}

func pythonDeadCode(relPath string, lines []string) []Finding {
	isImportLine := func(line string) bool {
		trimmed := strings.TrimSpace(line)
		return strings.HasPrefix(trimmed, "import") || strings.HasPrefix(trimmed, "from")
	}

	imports := make([]boundName, 0)
	funcs := make([]boundName, 0)
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "from __future__") {
			continue
		}
		if m := pythonImportRE.FindStringSubmatch(trimmed); m != nil {
			for _, name := range splitBoundNames(m[1], true) {
				imports = append(imports, boundName{name, i + 1})
			}
		} else if m := pythonFromImportRE.FindStringSubmatch(trimmed); m != nil {
			for _, name := range splitBoundNames(m[1], false) {
				imports = append(imports, boundName{name, i + 1})
			}
		}
		if m := pythonPrivateFuncRE.FindStringSubmatch(line); m != nil && !isDunder(m[1]) {
			funcs = append(funcs, boundName{m[1], i + 1})
		}
	}
	return deadCodeFindings(relPath, lines, imports, funcs, isImportLine)
}

func jsDeadCode(relPath string, lines []string) []Finding {
	isImportLine := func(line string) bool {
		return strings.HasPrefix(strings.TrimSpace(line), "import")
	}

	imports := make([]boundName, 0)
	funcs := make([]boundName, 0)
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "import") {
			if m := jsDefaultImportRE.FindStringSubmatch(trimmed); m != nil && m[1] != "type" {
				imports = append(imports, boundName{m[1], i + 1})
			}
			if m := jsNamespaceImport.FindStringSubmatch(trimmed); m != nil {
				imports = append(imports, boundName{m[1], i + 1})
			}
			if m := jsNamedImportRE.FindStringSubmatch(trimmed); m != nil {
				for _, name := range splitBoundNames(m[1], false) {
					imports = append(imports, boundName{name, i + 1})
				}
			}
		}
		if m := jsPrivateFuncRE.FindStringSubmatch(line); m != nil {
			name := m[1]
			if name == "" {
				name = m[2]
			}
			funcs = append(funcs, boundName{name, i + 1})
		}
	}
	return deadCodeFindings(relPath, lines, imports, funcs, isImportLine)
}

func deadCodeFindings(relPath string, lines []string, imports, funcs []boundName, isImportLine func(string) bool) []Finding {
	findings := make([]Finding, 0)
	for _, imp := range imports {
		if nameUsedOutside(imp.name, lines, isImportLine) {
			continue
		}
		findings = append(findings, Finding{
			Kind:            KindUnusedImport,
			Location:        Location{Path: relPath, Line: imp.line},
			Severity:        SeverityInfo,
			Name:            imp.name,
			Confidence:      unusedImportConfidence,
			Rationale:       fmt.Sprintf("Import '%s' appears to be unused", imp.name),
			SuggestedAction: deadCodeSuggestRemove,
		})
	}

	content := strings.Join(lines, "\n")
	for _, fn := range funcs {
		if countWord(fn.name, content) > 1 {
			continue
		}
		findings = append(findings, Finding{
			Kind:            KindUncalledPrivateFunction,
			Location:        Location{Path: relPath, Line: fn.line},
			Severity:        SeverityInfo,
			Name:            fn.name,
			Confidence:      uncalledFuncConfidence,
			Rationale:       fmt.Sprintf("Private function '%s' is never called", fn.name),
			SuggestedAction: deadCodeSuggestRemoveFun,
		})
	}
	return findings
}

// splitBoundNames turns "a as b, c" into the names the statement binds: b and c.
// For dotted module imports only the top package is bound.
func splitBoundNames(list string, dotted bool) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(list, ",") {
		fields := strings.Fields(strings.TrimSpace(strings.Trim(part, "()")))
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "type" && len(fields) > 1 {
			fields = fields[1:]
		}
		name := fields[0]
		if len(fields) >= 3 && fields[1] == "as" {
			name = fields[2]
		} else if dotted {
			name = strings.SplitN(name, ".", 2)[0]
		}
		if name == "" || name == "type" {
			continue
		}
		out = append(out, name)
	}
	return out
}

func nameUsedOutside(name string, lines []string, isImportLine func(string) bool) bool {
	re := wordRE(name)
	for _, line := range lines {
		if isImportLine(line) {
			continue
		}
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func countWord(name, content string) int {
	return len(wordRE(name).FindAllStringIndex(content, -1))
}

// wordRE matches name as a whole identifier. \b treats $ as a boundary, which is
// close enough for the identifiers these heuristics collect.
func wordRE(name string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
}

func isDunder(name string) bool {
	return strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}
