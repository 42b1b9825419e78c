package guardian

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrPlanNotFound is returned when a plan id is not in the store.
var ErrPlanNotFound = errors.New("plan not found")

// ScopeKind says how the entries of a plan's target scope are matched.
type ScopeKind string

const (
	// ScopeFiles entries are root-relative files or directories.
	ScopeFiles ScopeKind = "files"
	// ScopePhases entries are phase ids matched against path segments.
	ScopePhases ScopeKind = "phases"
)

// ChangePlanRecord is a declared intent to change part of the tree.
type ChangePlanRecord struct {
	ID           string     `json:"id"`
	Goal         string     `json:"goal"`
	ScopeKind    ScopeKind  `json:"scopeKind"`
	TargetScope  []string   `json:"targetScope"`
	CreatedAt    time.Time  `json:"createdAt"`
	FilesChanged []string   `json:"filesChanged,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// Completed reports whether files were attached to the plan.
func (p ChangePlanRecord) Completed() bool { return p.CompletedAt != nil }

// InScope reports whether the root-relative slash path falls inside the plan's scope.
func (p ChangePlanRecord) InScope(rel string) bool {
	for _, item := range p.TargetScope {
		if p.ScopeKind == ScopePhases {
			for _, segment := range strings.Split(rel, "/") {
				if segment == item {
					return true
				}
			}
			continue
		}
		if rel == item || strings.HasPrefix(rel, strings.TrimSuffix(item, "/")+"/") {
			return true
		}
	}
	return false
}

const (
	planEntryPlan     = "plan"
	planEntryComplete = "complete"
)

// planEntry is one line of the plan log. Completion lines carry only the id,
// the changed files and the completion time.
type planEntry struct {
	Entry string `json:"entry"`
	ChangePlanRecord
}

// PlanStore is an append-only JSON lines log of change plans.
type PlanStore struct {
	mu    sync.Mutex
	path  string
	now   func() time.Time
	newID func() string
}

// OpenPlanStore returns a store backed by path. The file is created on the first append.
func OpenPlanStore(path string) *PlanStore {
	return &PlanStore{
		path:  path,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// Path returns the log file location.
func (s *PlanStore) Path() string { return s.path }

// Record appends a new plan and returns it.
func (s *PlanStore) Record(goal string, kind ScopeKind, scope []string) (ChangePlanRecord, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return ChangePlanRecord{}, errors.New("plan goal is required")
	}
	switch kind {
	case "":
		kind = ScopeFiles
	case ScopeFiles, ScopePhases:
	default:
		return ChangePlanRecord{}, fmt.Errorf("unknown scope kind %q", kind)
	}

	plan := ChangePlanRecord{
		ID:          s.newID(),
		Goal:        goal,
		ScopeKind:   kind,
		TargetScope: normalizeScope(scope, kind),
		CreatedAt:   s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.append(planEntry{Entry: planEntryPlan, ChangePlanRecord: plan}); err != nil {
		return ChangePlanRecord{}, err
	}
	return plan, nil
}

// Complete attaches the files that actually changed to plan id by appending
// an amendment line. The original line is never rewritten.
func (s *PlanStore) Complete(id string, files []string) (ChangePlanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plans, err := s.load()
	if err != nil {
		return ChangePlanRecord{}, err
	}
	var plan *ChangePlanRecord
	for i := range plans {
		if plans[i].ID == id {
			plan = &plans[i]
			break
		}
	}
	if plan == nil {
		return ChangePlanRecord{}, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}

	completedAt := s.now().UTC()
	plan.FilesChanged = normalizeScope(files, ScopeFiles)
	plan.CompletedAt = &completedAt
	amendment := planEntry{
		Entry: planEntryComplete,
		ChangePlanRecord: ChangePlanRecord{
			ID:           id,
			FilesChanged: plan.FilesChanged,
			CompletedAt:  &completedAt,
		},
	}
	if err := s.append(amendment); err != nil {
		return ChangePlanRecord{}, err
	}
	return *plan, nil
}

// List returns every plan in the order recorded, with completions applied.
func (s *PlanStore) List() ([]ChangePlanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Latest returns the most recently recorded plan, or nil when there is none.
func (s *PlanStore) Latest() (*ChangePlanRecord, error) {
	plans, err := s.List()
	if err != nil || len(plans) == 0 {
		return nil, err
	}
	latest := plans[len(plans)-1]
	return &latest, nil
}

// load reads the log. Lines that fail to decode are skipped, so a torn final
// write never hides the plans before it.
func (s *PlanStore) load() ([]ChangePlanRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open plan log: %w", err)
	}
	defer f.Close()

	plans := make([]ChangePlanRecord, 0)
	index := make(map[string]int)
	reader := bufio.NewReader(f)
	for lineNo := 1; ; lineNo++ {
		line, readErr := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var entry planEntry
			if err := json.Unmarshal(line, &entry); err != nil || entry.ID == "" {
				slog.Warn("plans: skipping corrupt line", "path", s.path, "line", lineNo)
			} else {
				switch entry.Entry {
				case planEntryComplete:
					if i, ok := index[entry.ID]; ok {
						plans[i].FilesChanged = entry.FilesChanged
						plans[i].CompletedAt = entry.CompletedAt
					}
				default:
					index[entry.ID] = len(plans)
					plans = append(plans, entry.ChangePlanRecord)
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return nil, fmt.Errorf("read plan log: %w", readErr)
		}
	}
	return plans, nil
}

func (s *PlanStore) append(entry planEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create plan dir: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open plan log: %w", err)
	}
	defer f.Close()

	// Start on a fresh line if an earlier write was torn.
	if info, err := f.Stat(); err == nil && info.Size() > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, info.Size()-1); err == nil && last[0] != '\n' {
			data = append([]byte{'\n'}, data...)
		}
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("append plan: %w", err)
	}
	return f.Sync()
}

func normalizeScope(items []string, kind ScopeKind) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if kind == ScopeFiles {
			dir := strings.HasSuffix(item, "/")
			item = path.Clean(filepath.ToSlash(item))
			item = strings.TrimPrefix(item, "./")
			if item == "." {
				continue
			}
			if dir {
				item += "/"
			}
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
