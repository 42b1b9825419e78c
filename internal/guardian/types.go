package guardian

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidRoot is returned when the scan root is missing, unreadable or not a directory.
var ErrInvalidRoot = errors.New("invalid root")

// Category is the coarse tier a file is classified into.
type Category string

const (
	CategoryCode   Category = "code"
	CategoryConfig Category = "config"
	CategoryDocs   Category = "docs"
	CategoryStyles Category = "styles"
	CategoryData   Category = "data"
	CategoryOther  Category = "other"
)

// FileRecord describes one file of a Snapshot. Records are rebuilt on every scan.
type FileRecord struct {
	Path        string    `json:"path"`
	Category    Category  `json:"category"`
	Language    string    `json:"language,omitempty"`
	Purpose     string    `json:"purpose"`
	Symbols     []string  `json:"symbols,omitempty"`
	ContentHash string    `json:"contentHash"`
	ModTime     time.Time `json:"modTime"`
	Size        int64     `json:"size"`
	Lines       int       `json:"lines,omitempty"`
	IsTest      bool      `json:"isTest,omitempty"`
}

// Identity names the project and what it is for.
type Identity struct {
	Name    string `json:"name"`
	Purpose string `json:"purpose,omitempty"`
}

// Snapshot is the immutable result of one scan.
type Snapshot struct {
	Root         string                       `json:"root"`
	Timestamp    time.Time                    `json:"timestamp"`
	Identity     Identity                     `json:"identity"`
	Files        []FileRecord                 `json:"files"`
	TechStack    map[string]string            `json:"techStack,omitempty"`
	Dependencies map[string]map[string]string `json:"dependencies,omitempty"`
	Ports        map[int]string               `json:"ports,omitempty"`
	EnvVars      []string                     `json:"envVars,omitempty"`
	RunCommands  map[string]string            `json:"runCommands,omitempty"`
	Skipped      []*ScanError                 `json:"skipped,omitempty"`
}

// File returns the record stored for relPath.
func (s *Snapshot) File(relPath string) (FileRecord, bool) {
	if s == nil {
		return FileRecord{}, false
	}
	i := sort.Search(len(s.Files), func(i int) bool {
		return s.Files[i].Path >= relPath
	})
	if i < len(s.Files) && s.Files[i].Path == relPath {
		return s.Files[i], true
	}
	return FileRecord{}, false
}

// Paths returns every file path in snapshot order.
func (s *Snapshot) Paths() []string {
	if s == nil {
		return nil
	}
	paths := make([]string, len(s.Files))
	for i := range s.Files {
		paths[i] = s.Files[i].Path
	}
	return paths
}

// FilesIn returns the records of one category, in path order.
func (s *Snapshot) FilesIn(category Category) []FileRecord {
	if s == nil {
		return nil
	}
	out := make([]FileRecord, 0)
	for _, rec := range s.Files {
		if rec.Category == category {
			out = append(out, rec)
		}
	}
	return out
}

// ScanError records a per-file failure. The file is left out of the snapshot
// and the scan carries on.
type ScanError struct {
	Path string
	Op   string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

func (e *ScanError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Path  string `json:"path"`
		Op    string `json:"op"`
		Error string `json:"error"`
	}{e.Path, e.Op, msg})
}

func (e *ScanError) UnmarshalJSON(data []byte) error {
	var raw struct {
		Path  string `json:"path"`
		Op    string `json:"op"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Path = raw.Path
	e.Op = raw.Op
	if raw.Error != "" {
		e.Err = errors.New(raw.Error)
	}
	return nil
}

// ChangeAction is the kind of filesystem change observed for a path.
type ChangeAction string

const (
	ActionCreated  ChangeAction = "created"
	ActionModified ChangeAction = "modified"
	ActionDeleted  ChangeAction = "deleted"
)

// Change is one pending entry of a ChangeBatch.
type Change struct {
	Path   string       `json:"path"`
	Action ChangeAction `json:"action"`
	Digest string       `json:"digest,omitempty"`
}

// ChangeBatch holds the changes accumulated since the last flush, keyed by path.
type ChangeBatch struct {
	changes map[string]Change
}

// NewChangeBatch returns an empty batch.
func NewChangeBatch() *ChangeBatch {
	return &ChangeBatch{changes: make(map[string]Change)}
}

// Add records a change, replacing any earlier entry for the same path.
// A create followed by a modify stays a create.
func (b *ChangeBatch) Add(c Change) {
	if prev, ok := b.changes[c.Path]; ok && prev.Action == ActionCreated && c.Action == ActionModified {
		c.Action = ActionCreated
	}
	b.changes[c.Path] = c
}

// Get returns the pending change for path.
func (b *ChangeBatch) Get(path string) (Change, bool) {
	c, ok := b.changes[path]
	return c, ok
}

// Len reports the number of distinct paths in the batch.
func (b *ChangeBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.changes)
}

// Merge folds older into b. Entries already in b win since they are newer,
// except that an older create followed by a modify stays a create.
func (b *ChangeBatch) Merge(older *ChangeBatch) {
	if older == nil {
		return
	}
	for path, c := range older.changes {
		cur, ok := b.changes[path]
		if !ok {
			b.changes[path] = c
			continue
		}
		if c.Action == ActionCreated && cur.Action == ActionModified {
			cur.Action = ActionCreated
			b.changes[path] = cur
		}
	}
}

// Take returns the current contents and leaves b empty.
func (b *ChangeBatch) Take() *ChangeBatch {
	out := &ChangeBatch{changes: b.changes}
	b.changes = make(map[string]Change)
	return out
}

// Changes returns the batch entries sorted by path.
func (b *ChangeBatch) Changes() []Change {
	if b == nil {
		return nil
	}
	out := make([]Change, 0, len(b.changes))
	for _, c := range b.changes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Path < out[j].Path
	})
	return out
}
