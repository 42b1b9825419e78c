package guardian

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	filesPlan := &ChangePlanRecord{ID: "p1", Goal: "auth", ScopeKind: ScopeFiles, TargetScope: []string{"api/"}}
	phasePlan := &ChangePlanRecord{ID: "p2", Goal: "phase", ScopeKind: ScopePhases, TargetScope: []string{"phase-2"}}

	tests := []struct {
		name    string
		actual  []string
		plan    *ChangePlanRecord
		code    StatusCode
		planned int
		extra   []string
	}{
		{name: "no changes without plan", code: StatusNoChanges},
		{name: "no changes with plan", plan: filesPlan, code: StatusNoChanges},
		{name: "changes without plan", actual: []string{"b.py", "a.py", "b.py"}, code: StatusNoPlanForChanges, extra: []string{"a.py", "b.py"}},
		{name: "all in scope", actual: []string{"api/auth.py", "api/v1/users.py"}, plan: filesPlan, code: StatusOnTrack, planned: 2},
		{name: "extra files", actual: []string{"api/auth.py", "web/app.ts", "README.md"}, plan: filesPlan, code: StatusPlanViolations, planned: 1, extra: []string{"README.md", "web/app.ts"}},
		{name: "phase segment", actual: []string{"plans/phase-2/notes.md"}, plan: phasePlan, code: StatusOnTrack, planned: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := ClassifyStatus(tt.actual, tt.plan)
			assert.Equal(t, tt.code, status.Code)
			assert.Equal(t, tt.planned, status.PlannedCount)
			assert.Equal(t, len(tt.extra), status.ExtraCount)
			assert.Equal(t, tt.extra, status.ExtraFiles)
			if tt.plan != nil {
				assert.Equal(t, tt.plan.ID, status.PlanID)
				assert.Equal(t, tt.plan.Goal, status.LastGoal)
			}
		})
	}
}

func changedFiles(files ...string) ChangedFilesProvider {
	return ChangedFilesFunc(func(context.Context, string) ([]string, error) {
		return files, nil
	})
}

func TestStatusTrackerExcludesArtifacts(t *testing.T) {
	root := t.TempDir()
	opts := DefaultOptions()
	plans := OpenPlanStore(opts.StatePath(root, DefaultPlansFile))
	_, err := plans.Record("auth", ScopeFiles, []string{"api/"})
	require.NoError(t, err)

	tracker := NewStatusTracker(root, plans, changedFiles(
		"api/auth.py",
		".guardian/plans.jsonl",
		".guardian/snapshot.json",
		"./README.md",
	), opts)
	status, err := tracker.Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusPlanViolations, status.Code)
	assert.Equal(t, []string{"README.md", "api/auth.py"}, status.ChangedFiles)
	assert.Equal(t, []string{"README.md"}, status.ExtraFiles)
	assert.Equal(t, "auth", status.LastGoal)
}

func TestStatusTrackerTreatsProviderErrorAsNoChanges(t *testing.T) {
	root := t.TempDir()
	failing := ChangedFilesFunc(func(context.Context, string) ([]string, error) {
		return nil, errors.New("git exploded")
	})
	status, err := NewStatusTracker(root, nil, failing, DefaultOptions()).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusNoChanges, status.Code)
}

func TestStatusTrackerTreatsUnreadablePlanLogAsNoPlan(t *testing.T) {
	root := t.TempDir()
	opts := DefaultOptions()
	// A directory where the log should be cannot be read as lines.
	require.NoError(t, os.MkdirAll(opts.StatePath(root, DefaultPlansFile), 0o755))

	status, err := NewStatusTracker(root, nil, changedFiles("a.py"), opts).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusNoPlanForChanges, status.Code)
	assert.Equal(t, 1, status.ExtraCount)
}

func TestStatusTrackerInvalidRoot(t *testing.T) {
	_, err := NewStatusTracker(filepath.Join(t.TempDir(), "missing"), nil, changedFiles(), DefaultOptions()).Status(context.Background())
	assert.ErrorIs(t, err, ErrInvalidRoot)
}

func TestStatusTrackerOutsideGitHasNoChanges(t *testing.T) {
	root := t.TempDir()
	t.Setenv("GIT_CEILING_DIRECTORIES", filepath.Dir(root))
	writeTree(t, root, map[string]string{"a.py": "x = 1\n"})

	status, err := NewStatusTracker(root, nil, nil, DefaultOptions()).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusNoChanges, status.Code)
}
