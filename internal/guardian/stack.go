package guardian

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/modfile"
	"gopkg.in/yaml.v3"
)

// projectSignals is everything derived from project-level manifests rather than per-file parsing.
type projectSignals struct {
	Identity     Identity
	TechStack    map[string]string
	Dependencies map[string]map[string]string
	EnvVars      []string
	RunCommands  map[string]string
	Ports        map[int]string
}

// Frontend dependencies worth surfacing, in report order.
var importantFrontendDeps = []string{
	"react", "vue", "next", "electron", "tailwindcss",
	"typescript", "vite", "webpack", "express",
}

type packageJSON struct {
	Description     string            `json:"description"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	Scripts         map[string]string `json:"scripts"`
}

type cargoManifest struct {
	Package struct {
		Edition string `toml:"edition"`
	} `toml:"package"`
	Dependencies map[string]any `toml:"dependencies"`
}

type pyprojectManifest struct {
	Project struct {
		Description  string   `toml:"description"`
		Dependencies []string `toml:"dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies map[string]any `toml:"dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

type composeFile struct {
	Services map[string]struct {
		Ports []any `yaml:"ports"`
	} `yaml:"services"`
}

// detectProjectSignals reads the root-level manifests of absRoot. Missing or
// malformed manifests are skipped.
func detectProjectSignals(absRoot string, idx *FileIndex) projectSignals {
	signals := projectSignals{
		Identity:     Identity{Name: filepath.Base(absRoot)},
		TechStack:    make(map[string]string),
		Dependencies: make(map[string]map[string]string),
		RunCommands:  make(map[string]string),
		Ports:        make(map[int]string),
	}

	signals.Identity.Purpose = readmePurpose(filepath.Join(absRoot, "README.md"))

	if pkg, ok := readPackageJSON(filepath.Join(absRoot, "package.json")); ok {
		applyPackageJSON(&signals, pkg)
	}
	if data, ok := readManifest(absRoot, "requirements.txt"); ok {
		applyRequirements(&signals, data)
		switch {
		case fileExists(filepath.Join(absRoot, "api", "main.py")):
			signals.RunCommands["backend"] = "cd api && uvicorn main:app --reload"
		case fileExists(filepath.Join(absRoot, "main.py")):
			signals.RunCommands["backend"] = "uvicorn main:app --reload"
		}
	}
	if data, ok := readManifest(absRoot, "pyproject.toml"); ok {
		applyPyproject(&signals, data)
	}
	if data, ok := readManifest(absRoot, "go.mod"); ok {
		applyGoMod(&signals, data)
		if fileExists(filepath.Join(absRoot, "main.go")) {
			setDefault(signals.RunCommands, "backend", "go run .")
		}
	}
	if data, ok := readManifest(absRoot, "Cargo.toml"); ok {
		applyCargo(&signals, data)
		setDefault(signals.RunCommands, "backend", "cargo run")
	}
	for _, name := range []string{"docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml"} {
		if data, ok := readManifest(absRoot, name); ok {
			applyCompose(&signals, name, data)
		}
	}
	signals.EnvVars = readEnvVarNames(absRoot)

	if idx != nil {
		for _, rec := range idx.Files {
			switch strings.ToLower(filepath.Ext(rec.RelPath)) {
			case ".db", ".sqlite", ".sqlite3":
				setDefault(signals.TechStack, "database", "SQLite")
			}
		}
	}

	return signals
}

func readManifest(absRoot, name string) ([]byte, bool) {
	data, err := os.ReadFile(filepath.Join(absRoot, name))
	if err != nil {
		return nil, false
	}
	return data, true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func setDefault(m map[string]string, key, value string) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

func dependencyGroup(signals *projectSignals, group string) map[string]string {
	deps, ok := signals.Dependencies[group]
	if !ok {
		deps = make(map[string]string)
		signals.Dependencies[group] = deps
	}
	return deps
}

// readmePurpose returns the first non-heading line after the title, capped at 100 characters.
func readmePurpose(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	if len(data) > 500 {
		data = data[:500]
	}
	lines := strings.Split(string(data), "\n")
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if len(line) > 100 {
			line = line[:100]
		}
		return line
	}
	return ""
}

func readPackageJSON(path string) (packageJSON, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return packageJSON{}, false
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		slog.Debug("skip malformed package.json", "path", path, "error", err)
		return packageJSON{}, false
	}
	return pkg, true
}

func trimVersionRange(v string) string {
	return strings.TrimLeft(strings.TrimSpace(v), "^~")
}

func applyPackageJSON(signals *projectSignals, pkg packageJSON) {
	all := make(map[string]string, len(pkg.Dependencies)+len(pkg.DevDependencies))
	for name, v := range pkg.Dependencies {
		all[name] = v
	}
	for name, v := range pkg.DevDependencies {
		if _, ok := all[name]; !ok {
			all[name] = v
		}
	}

	frontend := ""
	switch {
	case has(all, "react"):
		frontend = strings.TrimSpace("React " + trimVersionRange(all["react"]))
	case has(all, "vue"):
		frontend = strings.TrimSpace("Vue " + trimVersionRange(all["vue"]))
	case has(all, "svelte"):
		frontend = "Svelte"
	case has(all, "next"):
		frontend = "Next.js"
	}
	if has(all, "electron") {
		if frontend == "" {
			frontend = "Electron"
		} else {
			frontend += " + Electron"
		}
	}
	if frontend != "" {
		signals.TechStack["frontend"] = frontend
	}

	switch {
	case has(all, "tailwindcss"):
		signals.TechStack["styling"] = "Tailwind CSS"
	case has(all, "styled-components"):
		signals.TechStack["styling"] = "Styled Components"
	}

	for _, name := range importantFrontendDeps {
		if v, ok := pkg.Dependencies[name]; ok {
			dependencyGroup(signals, "frontend")[name] = trimVersionRange(v)
		}
	}

	switch {
	case has(pkg.Scripts, "dev"):
		signals.RunCommands["frontend"] = "npm run dev"
	case has(pkg.Scripts, "start"):
		signals.RunCommands["frontend"] = "npm start"
	}
	if has(pkg.Scripts, "test") {
		signals.RunCommands["test_frontend"] = "npm test"
	}
	if signals.Identity.Purpose == "" && pkg.Description != "" {
		signals.Identity.Purpose = truncate(pkg.Description, 100)
	}
}

func has(m map[string]string, key string) bool {
	_, ok := m[key]
	return ok
}

var pythonBackends = []struct {
	marker string
	label  string
}{
	{"fastapi", "FastAPI"},
	{"django", "Django"},
	{"flask", "Flask"},
}

func detectPythonBackend(signals *projectSignals, lowered string) {
	if _, ok := signals.TechStack["backend"]; ok {
		return
	}
	for _, b := range pythonBackends {
		if strings.Contains(lowered, b.marker) {
			signals.TechStack["backend"] = b.label
			return
		}
	}
}

func applyRequirements(signals *projectSignals, data []byte) {
	detectPythonBackend(signals, strings.ToLower(string(data)))

	deps := dependencyGroup(signals, "backend")
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		if name, version, ok := strings.Cut(line, "=="); ok {
			deps[strings.TrimSpace(name)] = strings.TrimSpace(version)
			continue
		}
		deps[line] = "latest"
	}
}

// Splits a PEP 508 requirement such as "fastapi>=0.110" into name and constraint.
var pep508NameRE = regexp.MustCompile(`^\s*([A-Za-z0-9][A-Za-z0-9._-]*)\s*(?:\[[^\]]*\])?\s*(.*)$`)

func applyPyproject(signals *projectSignals, data []byte) {
	var manifest pyprojectManifest
	if err := toml.Unmarshal(data, &manifest); err != nil {
		slog.Debug("skip malformed pyproject.toml", "error", err)
		return
	}
	if signals.Identity.Purpose == "" && manifest.Project.Description != "" {
		signals.Identity.Purpose = truncate(manifest.Project.Description, 100)
	}

	names := make([]string, 0)
	deps := dependencyGroup(signals, "backend")
	for _, req := range manifest.Project.Dependencies {
		m := pep508NameRE.FindStringSubmatch(req)
		if m == nil {
			continue
		}
		version := strings.TrimSpace(strings.TrimPrefix(m[2], "=="))
		if version == "" {
			version = "latest"
		}
		deps[m[1]] = version
		names = append(names, strings.ToLower(m[1]))
	}
	for name, raw := range manifest.Tool.Poetry.Dependencies {
		if strings.EqualFold(name, "python") {
			continue
		}
		deps[name] = tomlDependencyVersion(raw)
		names = append(names, strings.ToLower(name))
	}
	detectPythonBackend(signals, strings.Join(names, " "))
}

func applyGoMod(signals *projectSignals, data []byte) {
	file, err := modfile.ParseLax("go.mod", data, nil)
	if err != nil {
		slog.Debug("skip malformed go.mod", "error", err)
		return
	}
	label := "Go"
	if file.Go != nil && file.Go.Version != "" {
		label += " " + file.Go.Version
	}
	setDefault(signals.TechStack, "backend", label)
	deps := dependencyGroup(signals, "go")
	for _, req := range file.Require {
		if req.Indirect {
			continue
		}
		deps[req.Mod.Path] = req.Mod.Version
	}
}

func applyCargo(signals *projectSignals, data []byte) {
	var manifest cargoManifest
	if err := toml.Unmarshal(data, &manifest); err != nil {
		slog.Debug("skip malformed Cargo.toml", "error", err)
		return
	}
	label := "Rust"
	if manifest.Package.Edition != "" {
		label += " (edition " + manifest.Package.Edition + ")"
	}
	setDefault(signals.TechStack, "backend", label)
	deps := dependencyGroup(signals, "rust")
	for name, raw := range manifest.Dependencies {
		deps[name] = tomlDependencyVersion(raw)
	}
}

// tomlDependencyVersion handles both `name = "1.0"` and `name = { version = "1.0" }`.
func tomlDependencyVersion(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case map[string]any:
		if version, ok := v["version"].(string); ok {
			return version
		}
	}
	return "latest"
}

// applyCompose records published host ports from a compose file.
func applyCompose(signals *projectSignals, name string, data []byte) {
	var compose composeFile
	if err := yaml.Unmarshal(data, &compose); err != nil {
		slog.Debug("skip malformed compose file", "path", name, "error", err)
		return
	}
	services := make([]string, 0, len(compose.Services))
	for svc := range compose.Services {
		services = append(services, svc)
	}
	sort.Strings(services)
	for _, svc := range services {
		for _, raw := range compose.Services[svc].Ports {
			port, ok := composeHostPort(raw)
			if !ok {
				continue
			}
			if _, exists := signals.Ports[port]; !exists {
				signals.Ports[port] = name
			}
		}
	}
}

// composeHostPort extracts the host side of "8080:80", "127.0.0.1:8080:80" or 8080.
func composeHostPort(raw any) (int, bool) {
	var spec string
	switch v := raw.(type) {
	case int:
		return v, validPort(v)
	case string:
		spec = v
	case map[string]any:
		if published, ok := v["published"]; ok {
			spec = fmt.Sprint(published)
		}
	default:
		return 0, false
	}
	spec = strings.Split(spec, "/")[0]
	parts := strings.Split(spec, ":")
	host := parts[0]
	if len(parts) >= 2 {
		host = parts[len(parts)-2]
	}
	host = strings.Split(host, "-")[0]
	port, err := strconv.Atoi(strings.TrimSpace(host))
	if err != nil {
		return 0, false
	}
	return port, validPort(port)
}

func readEnvVarNames(absRoot string) []string {
	for _, name := range []string{".env.example", ".env.sample"} {
		data, ok := readManifest(absRoot, name)
		if !ok {
			continue
		}
		vars := make([]string, 0)
		seen := make(map[string]struct{})
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, _, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			vars = append(vars, key)
		}
		return vars
	}
	return nil
}

var portPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)port["']?\s*[=:]\s*(\d{4,5})`),
	regexp.MustCompile(`(?i)localhost:(\d{4,5})`),
	regexp.MustCompile(`(?i)127\.0\.0\.1:(\d{4,5})`),
	regexp.MustCompile(`(?i)PORT\s*=\s*(\d{4,5})`),
}

var portSourceExtensions = map[string]struct{}{
	".py":   {},
	".js":   {},
	".ts":   {},
	".env":  {},
	".json": {},
}

func isPortSource(relPath string) bool {
	_, ok := portSourceExtensions[strings.ToLower(filepath.Ext(relPath))]
	return ok
}

// findPorts returns the ports mentioned in content, in pattern then source order.
func findPorts(content []byte) []int {
	ports := make([]int, 0)
	seen := make(map[int]struct{})
	for _, pattern := range portPatterns {
		for _, m := range pattern.FindAllSubmatch(content, -1) {
			port, err := strconv.Atoi(string(m[1]))
			if err != nil || !validPort(port) {
				continue
			}
			if _, ok := seen[port]; ok {
				continue
			}
			seen[port] = struct{}{}
			ports = append(ports, port)
		}
	}
	return ports
}

func validPort(port int) bool {
	return port >= 1000 && port <= 65535
}
