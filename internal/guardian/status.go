package guardian

import (
	"context"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// StatusCode classifies the working tree against the latest plan.
type StatusCode string

const (
	StatusNoChanges        StatusCode = "NO_CHANGES"
	StatusNoPlanForChanges StatusCode = "NO_PLAN_FOR_CHANGES"
	StatusPlanViolations   StatusCode = "PLAN_VIOLATIONS"
	StatusOnTrack          StatusCode = "ON_TRACK"
)

// GuardianStatus is derived on demand and never stored.
type GuardianStatus struct {
	Code         StatusCode `json:"code"`
	PlanID       string     `json:"planId,omitempty"`
	LastGoal     string     `json:"lastGoal,omitempty"`
	ScopeKind    ScopeKind  `json:"scopeKind,omitempty"`
	TargetScope  []string   `json:"targetScope,omitempty"`
	PlannedCount int        `json:"plannedCount"`
	ExtraCount   int        `json:"extraCount"`
	ChangedFiles []string   `json:"changedFiles,omitempty"`
	ExtraFiles   []string   `json:"extraFiles,omitempty"`
}

// ClassifyStatus compares the changed files with plan, which may be nil.
func ClassifyStatus(actual []string, plan *ChangePlanRecord) GuardianStatus {
	changed := uniqueSorted(actual)
	status := GuardianStatus{ChangedFiles: changed}
	if plan != nil {
		status.PlanID = plan.ID
		status.LastGoal = plan.Goal
		status.ScopeKind = plan.ScopeKind
		status.TargetScope = append([]string(nil), plan.TargetScope...)
	}

	switch {
	case len(changed) == 0:
		status.Code = StatusNoChanges
		return status
	case plan == nil:
		status.Code = StatusNoPlanForChanges
		status.ExtraCount = len(changed)
		status.ExtraFiles = changed
		return status
	}

	for _, file := range changed {
		if plan.InScope(file) {
			status.PlannedCount++
			continue
		}
		status.ExtraFiles = append(status.ExtraFiles, file)
	}
	status.ExtraCount = len(status.ExtraFiles)
	if status.ExtraCount > 0 {
		status.Code = StatusPlanViolations
	} else {
		status.Code = StatusOnTrack
	}
	return status
}

// StatusTracker combines the plan log with the working tree diff.
type StatusTracker struct {
	root    string
	plans   *PlanStore
	changes ChangedFilesProvider
	opts    Options
}

// NewStatusTracker returns a tracker for root. Nil plans or changes select the
// plan log in the state directory and git respectively.
func NewStatusTracker(root string, plans *PlanStore, changes ChangedFilesProvider, opts Options) *StatusTracker {
	opts = opts.withDefaults()
	if plans == nil {
		plans = OpenPlanStore(opts.StatePath(root, DefaultPlansFile))
	}
	if changes == nil {
		changes = NewGitChanges(opts.VCSTimeout)
	}
	return &StatusTracker{root: root, plans: plans, changes: changes, opts: opts}
}

// Status computes the current GuardianStatus. Only an invalid root is an
// error; an unreadable plan log or a failing VCS query count as absent.
func (t *StatusTracker) Status(ctx context.Context) (GuardianStatus, error) {
	absRoot, err := resolveRoot(t.root)
	if err != nil {
		return GuardianStatus{}, err
	}

	changed, err := t.changes.ChangedFiles(ctx, absRoot)
	if err != nil {
		slog.Debug("status: changed files unavailable", "root", absRoot, "error", err)
		changed = nil
	}
	actual := make([]string, 0, len(changed))
	artifacts := t.opts.artifactPaths(absRoot)
	for _, file := range changed {
		rel := strings.TrimPrefix(path.Clean(filepath.ToSlash(file)), "./")
		if isArtifact(rel, artifacts) {
			continue
		}
		actual = append(actual, rel)
	}

	plan, err := t.plans.Latest()
	if err != nil {
		slog.Warn("status: plan log unreadable", "path", t.plans.Path(), "error", err)
		plan = nil
	}
	return ClassifyStatus(actual, plan), nil
}

func uniqueSorted(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}
