package guardian

import (
	"path/filepath"
	"sort"
	"strings"
)

const (
	languageC          = "c"
	languageCPP        = "cpp"
	languageCSharp     = "csharp"
	languageGo         = "go"
	languageJava       = "java"
	languageJavaScript = "javascript"
	languageKotlin     = "kotlin"
	languagePHP        = "php"
	languagePython     = "python"
	languageRuby       = "ruby"
	languageRust       = "rust"
	languageShell      = "shell"
	languageSvelte     = "svelte"
	languageSwift      = "swift"
	languageTypeScript = "typescript"
	languageVue        = "vue"
)

// LanguageSpec describes source file matching rules for a language.
type LanguageSpec struct {
	ID               string
	FileSuffixes     []string
	TestFileSuffixes []string
	TestFilePrefixes []string
}

var builtinLanguageSpecs = map[string]LanguageSpec{
	languageC:          {ID: languageC, FileSuffixes: []string{".c", ".h"}, TestFileSuffixes: []string{"_test.c"}},
	languageCPP:        {ID: languageCPP, FileSuffixes: []string{".cpp", ".hpp", ".cc", ".cxx"}, TestFileSuffixes: []string{"_test.cpp", "_test.cc"}},
	languageCSharp:     {ID: languageCSharp, FileSuffixes: []string{".cs"}, TestFileSuffixes: []string{"tests.cs", "test.cs"}},
	languageGo:         {ID: languageGo, FileSuffixes: []string{".go"}, TestFileSuffixes: []string{"_test.go"}},
	languageJava:       {ID: languageJava, FileSuffixes: []string{".java"}, TestFileSuffixes: []string{"test.java"}},
	languageJavaScript: {ID: languageJavaScript, FileSuffixes: []string{".js", ".jsx", ".mjs", ".cjs"}, TestFileSuffixes: []string{".test.js", ".spec.js", ".test.jsx", ".spec.jsx"}},
	languageKotlin:     {ID: languageKotlin, FileSuffixes: []string{".kt", ".kts"}, TestFileSuffixes: []string{"test.kt"}},
	languagePHP:        {ID: languagePHP, FileSuffixes: []string{".php"}, TestFileSuffixes: []string{"test.php"}},
	languagePython:     {ID: languagePython, FileSuffixes: []string{".py"}, TestFileSuffixes: []string{"_test.py"}, TestFilePrefixes: []string{"test_"}},
	languageRuby:       {ID: languageRuby, FileSuffixes: []string{".rb"}, TestFileSuffixes: []string{"_test.rb", "_spec.rb"}},
	languageRust:       {ID: languageRust, FileSuffixes: []string{".rs"}},
	languageShell:      {ID: languageShell, FileSuffixes: []string{".sh", ".bash"}, TestFileSuffixes: []string{".bats"}},
	languageSvelte:     {ID: languageSvelte, FileSuffixes: []string{".svelte"}},
	languageSwift:      {ID: languageSwift, FileSuffixes: []string{".swift"}, TestFileSuffixes: []string{"tests.swift"}},
	languageTypeScript: {ID: languageTypeScript, FileSuffixes: []string{".ts", ".tsx", ".mts", ".cts"}, TestFileSuffixes: []string{".test.ts", ".spec.ts", ".test.tsx", ".spec.tsx"}},
	languageVue:        {ID: languageVue, FileSuffixes: []string{".vue"}},
}

type languageMatch struct {
	ID     string
	IsTest bool
}

type suffixLanguage struct {
	suffix string
	spec   LanguageSpec
}

// Longest suffix first, then lexical, so matching never depends on map order.
var builtinSuffixTable = buildSuffixTable()

func buildSuffixTable() []suffixLanguage {
	table := make([]suffixLanguage, 0)
	for _, spec := range builtinLanguageSpecs {
		for _, suffix := range spec.FileSuffixes {
			table = append(table, suffixLanguage{suffix: suffix, spec: spec})
		}
	}
	sort.Slice(table, func(i, j int) bool {
		if len(table[i].suffix) != len(table[j].suffix) {
			return len(table[i].suffix) > len(table[j].suffix)
		}
		return table[i].suffix < table[j].suffix
	})
	return table
}

func matchLanguageForPath(path string) (languageMatch, bool) {
	name := strings.ToLower(filepath.Base(path))
	for _, entry := range builtinSuffixTable {
		if !strings.HasSuffix(name, entry.suffix) {
			continue
		}
		return languageMatch{
			ID:     entry.spec.ID,
			IsTest: isTestName(name, entry.spec) || isTestDir(path),
		}, true
	}
	return languageMatch{}, false
}

func isTestName(name string, spec LanguageSpec) bool {
	return hasAnySuffix(name, spec.TestFileSuffixes) || hasAnyPrefix(name, spec.TestFilePrefixes)
}

func isTestDir(relPath string) bool {
	dir := filepath.ToSlash(filepath.Dir(relPath))
	for _, part := range strings.Split(dir, "/") {
		switch strings.ToLower(part) {
		case "test", "tests", "__tests__", "spec":
			return true
		}
	}
	return false
}

func isTypeScriptTSXPath(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".tsx")
}

func hasAnySuffix(value string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(value, suffix) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(value string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}

var binaryAssetExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".ico": {}, ".webp": {},
	".mp3": {}, ".mp4": {}, ".wav": {}, ".avi": {}, ".mov": {},
	".pdf": {}, ".zip": {}, ".tar": {}, ".gz": {}, ".rar": {},
	".exe": {}, ".dll": {}, ".so": {}, ".dylib": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
	".db": {}, ".sqlite": {}, ".sqlite3": {},
}

// Extensionless names that are configuration by convention.
var wellKnownConfigNames = map[string]struct{}{
	"containerfile": {},
	"dockerfile":    {},
	"gemfile":       {},
	"justfile":      {},
	"makefile":      {},
	"procfile":      {},
}

// classifier assigns categories using the configured extension tables.
type classifier struct {
	tables []categoryTable
	watch  map[string]struct{}
}

type categoryTable struct {
	category Category
	suffixes map[string]struct{}
}

func newClassifier(opts Options) *classifier {
	return &classifier{
		tables: []categoryTable{
			{CategoryCode, suffixSet(opts.CodeExtensions)},
			{CategoryConfig, suffixSet(opts.ConfigExtensions)},
			{CategoryDocs, suffixSet(opts.DocExtensions)},
			{CategoryStyles, suffixSet(opts.StyleExtensions)},
			{CategoryData, suffixSet(opts.DataExtensions)},
		},
		watch: suffixSet(opts.WatchExtensions),
	}
}

func suffixSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if !strings.HasPrefix(v, ".") {
			v = "." + v
		}
		set[v] = struct{}{}
	}
	return set
}

// nameSuffixes returns every dot suffix of name, longest first:
// ".env.example" yields ".env.example" then ".example".
func nameSuffixes(name string) []string {
	out := make([]string, 0, 2)
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			out = append(out, name[i:])
		}
	}
	return out
}

// category classifies a file by its base name.
func (c *classifier) category(name string) Category {
	lower := strings.ToLower(name)
	suffixes := nameSuffixes(lower)
	for _, suffix := range suffixes {
		for _, table := range c.tables {
			if _, ok := table.suffixes[suffix]; ok {
				return table.category
			}
		}
	}
	if _, ok := wellKnownConfigNames[lower]; ok {
		return CategoryConfig
	}
	return CategoryOther
}

// watched reports whether changes to a file with this name are relevant.
func (c *classifier) watched(name string) bool {
	for _, suffix := range nameSuffixes(strings.ToLower(name)) {
		if _, ok := c.watch[suffix]; ok {
			return true
		}
	}
	return false
}

func assetExtension(name string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := binaryAssetExtensions[ext]; ok {
		return filepath.Ext(name), true
	}
	return "", false
}
