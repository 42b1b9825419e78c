package guardian

import (
	"path"
	"strings"
)

// Parent directory name -> purpose suffix for code files.
var directoryPurposes = []struct {
	dirs   []string
	suffix string
}{
	{[]string{"components", "component"}, "-ui"},
	{[]string{"hooks", "hook"}, "-logic"},
	{[]string{"pages", "views"}, "-page"},
	{[]string{"routes", "api"}, "-endpoints"},
	{[]string{"services", "service"}, "-service"},
	{[]string{"utils", "helpers", "lib"}, "-utils"},
	{[]string{"models", "model"}, "-model"},
}

var entryPointStems = map[string]struct{}{
	"main":   {},
	"app":    {},
	"index":  {},
	"server": {},
}

// Ordered: the first fragment contained in the lower-cased file name wins.
var configPurposes = []struct {
	fragment string
	purpose  string
}{
	{"package.json", "npm-config"},
	{"tsconfig", "typescript-config"},
	{"eslint", "linting-config"},
	{"prettier", "formatting-config"},
	{"docker", "docker-config"},
	{"env", "environment-vars"},
	{"gitignore", "git-ignore"},
	{"requirements", "python-deps"},
	{"pyproject", "python-project"},
	{"go.mod", "go-module"},
	{"cargo.toml", "rust-crate"},
	{"makefile", "build-config"},
}

// inferPurpose derives a short label from a file's location and name.
func inferPurpose(relPath string, category Category) string {
	name := path.Base(relPath)
	switch category {
	case CategoryCode:
		return inferCodePurpose(relPath)
	case CategoryConfig:
		return inferConfigPurpose(name)
	case CategoryDocs:
		return "documentation"
	case CategoryStyles:
		return "styling"
	case CategoryData:
		return "data"
	}
	if ext, ok := assetExtension(name); ok {
		return "asset (" + ext + ")"
	}
	return "other"
}

func inferCodePurpose(relPath string) string {
	base := path.Base(relPath)
	stem := strings.ToLower(strings.TrimSuffix(base, path.Ext(base)))
	parent := strings.ToLower(path.Base(path.Dir(relPath)))

	for _, rule := range directoryPurposes {
		for _, dir := range rule.dirs {
			if parent == dir {
				return stem + rule.suffix
			}
		}
	}
	if _, ok := entryPointStems[stem]; ok {
		return "entry-point"
	}
	return stem
}

func inferConfigPurpose(name string) string {
	lower := strings.ToLower(name)
	for _, rule := range configPurposes {
		if strings.Contains(lower, rule.fragment) {
			return rule.purpose
		}
	}
	return "config"
}
