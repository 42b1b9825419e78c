package guardian

import (
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	DefaultStateDir     = ".guardian"
	DefaultSnapshotFile = "snapshot.json"
	DefaultQualityFile  = "quality.json"
	DefaultPathsFile    = "snapshot.paths"
	DefaultHashFile     = "hashes.json"
	DefaultPlansFile    = "plans.jsonl"
	DefaultLogFile      = "guardian.log"
)

// Options configures scanning, watching, quality analysis and status tracking.
type Options struct {
	IgnoreDirs       []string `mapstructure:"ignore_dirs" yaml:"ignore_dirs"`
	CodeExtensions   []string `mapstructure:"code_extensions" yaml:"code_extensions"`
	ConfigExtensions []string `mapstructure:"config_extensions" yaml:"config_extensions"`
	DocExtensions    []string `mapstructure:"doc_extensions" yaml:"doc_extensions"`
	StyleExtensions  []string `mapstructure:"style_extensions" yaml:"style_extensions"`
	DataExtensions   []string `mapstructure:"data_extensions" yaml:"data_extensions"`
	WatchExtensions  []string `mapstructure:"watch_extensions" yaml:"watch_extensions"`

	DebounceWindow time.Duration `mapstructure:"debounce_window" yaml:"debounce_window"`
	// MaxScanRetries of 0 disables retries; a negative value selects the default.
	MaxScanRetries int           `mapstructure:"max_scan_retries" yaml:"max_scan_retries"`
	ScanOnStart    bool          `mapstructure:"scan_on_start" yaml:"scan_on_start"`

	DuplicateThreshold     float64  `mapstructure:"duplicate_threshold" yaml:"duplicate_threshold"`
	OversizedFileLines     int      `mapstructure:"oversized_file_lines" yaml:"oversized_file_lines"`
	OversizedFunctionLines int      `mapstructure:"oversized_function_lines" yaml:"oversized_function_lines"`
	RequiredDocs           []string `mapstructure:"required_docs" yaml:"required_docs"`

	MaxWorkers   int           `mapstructure:"max_workers" yaml:"max_workers"`
	MaxFileBytes int64         `mapstructure:"max_file_bytes" yaml:"max_file_bytes"`
	VCSTimeout   time.Duration `mapstructure:"vcs_timeout" yaml:"vcs_timeout"`

	StateDir     string `mapstructure:"state_dir" yaml:"state_dir"`
	SnapshotFile string `mapstructure:"snapshot_file" yaml:"snapshot_file"`
	QualityFile  string `mapstructure:"quality_file" yaml:"quality_file"`
	LogFile      string `mapstructure:"log_file" yaml:"log_file"`
}

// DefaultOptions returns the built-in configuration.
func DefaultOptions() Options {
	return Options{
		IgnoreDirs: []string{
			"node_modules", "__pycache__", ".git", ".venv", "venv",
			"dist", "build", ".next", ".nuxt", ".cache", "coverage", ".pytest_cache",
			".cursor", ".windsurf", ".idea", ".vscode", "vendor",
		},
		CodeExtensions: []string{
			".py", ".js", ".jsx", ".ts", ".tsx", ".vue", ".svelte",
			".java", ".kt", ".swift", ".go", ".rs", ".rb", ".php",
			".c", ".cpp", ".h", ".hpp", ".cs", ".sh", ".bash",
		},
		ConfigExtensions: []string{
			".json", ".yaml", ".yml", ".toml", ".ini", ".cfg",
			".env", ".env.example", ".env.local", ".env.sample",
			".gitignore", ".dockerignore", ".prettierrc", ".eslintrc",
		},
		DocExtensions:   []string{".md", ".mdx", ".txt", ".rst", ".adoc"},
		StyleExtensions: []string{".css", ".scss", ".sass", ".less", ".styl"},
		DataExtensions:  []string{".sql", ".csv", ".xml", ".html", ".svg"},
		WatchExtensions: []string{
			".py", ".js", ".jsx", ".ts", ".tsx", ".vue", ".svelte",
			".java", ".kt", ".swift", ".go", ".rs", ".rb",
			".css", ".scss", ".less", ".html", ".md",
			".json", ".yaml", ".yml", ".toml",
		},

		DebounceWindow: 2 * time.Second,
		MaxScanRetries: 3,

		DuplicateThreshold:     0.8,
		OversizedFileLines:     500,
		OversizedFunctionLines: 100,
		RequiredDocs:           []string{"README.md"},

		MaxWorkers:   8,
		MaxFileBytes: 1 << 20,
		VCSTimeout:   3 * time.Second,

		StateDir:     DefaultStateDir,
		SnapshotFile: DefaultSnapshotFile,
		QualityFile:  DefaultQualityFile,
		LogFile:      DefaultLogFile,
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.IgnoreDirs == nil {
		o.IgnoreDirs = def.IgnoreDirs
	}
	if o.CodeExtensions == nil {
		o.CodeExtensions = def.CodeExtensions
	}
	if o.ConfigExtensions == nil {
		o.ConfigExtensions = def.ConfigExtensions
	}
	if o.DocExtensions == nil {
		o.DocExtensions = def.DocExtensions
	}
	if o.StyleExtensions == nil {
		o.StyleExtensions = def.StyleExtensions
	}
	if o.DataExtensions == nil {
		o.DataExtensions = def.DataExtensions
	}
	if o.WatchExtensions == nil {
		o.WatchExtensions = def.WatchExtensions
	}
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = def.DebounceWindow
	}
	if o.MaxScanRetries < 0 {
		o.MaxScanRetries = def.MaxScanRetries
	}
	if o.DuplicateThreshold <= 0 || o.DuplicateThreshold > 1 {
		o.DuplicateThreshold = def.DuplicateThreshold
	}
	if o.OversizedFileLines <= 0 {
		o.OversizedFileLines = def.OversizedFileLines
	}
	if o.OversizedFunctionLines <= 0 {
		o.OversizedFunctionLines = def.OversizedFunctionLines
	}
	if o.RequiredDocs == nil {
		o.RequiredDocs = def.RequiredDocs
	}
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = def.MaxWorkers
	}
	if o.MaxFileBytes <= 0 {
		o.MaxFileBytes = def.MaxFileBytes
	}
	if o.VCSTimeout <= 0 {
		o.VCSTimeout = def.VCSTimeout
	}
	if o.StateDir == "" {
		o.StateDir = def.StateDir
	}
	if o.SnapshotFile == "" {
		o.SnapshotFile = def.SnapshotFile
	}
	if o.QualityFile == "" {
		o.QualityFile = def.QualityFile
	}
	if o.LogFile == "" {
		o.LogFile = def.LogFile
	}
	return o
}

func (o Options) workerCount() int {
	workers := runtime.NumCPU()
	if workers > o.MaxWorkers {
		workers = o.MaxWorkers
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// StatePath resolves a file name inside the state directory of root.
func (o Options) StatePath(root, name string) string {
	dir := o.StateDir
	if dir == "" {
		dir = DefaultStateDir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return filepath.Join(dir, name)
}

// artifactPaths lists the root-relative slash paths guardian itself writes.
// Changes to them are never reported.
func (o Options) artifactPaths(root string) []string {
	o = o.withDefaults()
	names := []string{o.SnapshotFile, o.QualityFile, DefaultPathsFile, DefaultHashFile, DefaultPlansFile, o.LogFile}
	out := make([]string, 0, len(names)+1)
	if !filepath.IsAbs(o.StateDir) {
		out = append(out, filepath.ToSlash(filepath.Clean(o.StateDir)))
	}
	for _, name := range names {
		rel, err := filepath.Rel(root, o.StatePath(root, name))
		rel = filepath.ToSlash(rel)
		if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
			continue
		}
		out = append(out, rel)
	}
	return out
}

func isArtifact(rel string, artifacts []string) bool {
	for _, artifact := range artifacts {
		if rel == artifact || strings.HasPrefix(rel, artifact+"/") {
			return true
		}
	}
	return false
}
