package guardian

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePorcelain(t *testing.T) {
	output := " M api/auth.py\n" +
		"?? web/new file.ts\n" +
		"R  old.py -> new.py\n" +
		"A  \"docs/caf\\303\\251.md\"\n" +
		" M api/auth.py\n" +
		"x\n"

	assert.Equal(t,
		[]string{"api/auth.py", "web/new file.ts", "new.py", "docs/café.md"},
		parsePorcelain(output, ""))

	assert.Equal(t,
		[]string{"auth.py"},
		parsePorcelain(output, "api/"))
}

func TestGitChangesOutsideRepositoryIsEmpty(t *testing.T) {
	root := t.TempDir()
	t.Setenv("GIT_CEILING_DIRECTORIES", filepath.Dir(root))

	files, err := NewGitChanges(time.Second).ChangedFiles(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, files)

	missing := &GitChanges{GitPath: filepath.Join(root, "no-such-git")}
	files, err = missing.ChangedFiles(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestGitChangesReportsUntrackedFilesRelativeToRoot(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	repo := t.TempDir()
	t.Setenv("GIT_CEILING_DIRECTORIES", filepath.Dir(repo))
	require.NoError(t, exec.Command("git", "-C", repo, "init", "-q").Run())

	writeTree(t, repo, map[string]string{
		"top.py":          "x = 1\n",
		"service/app.py":  "y = 1\n",
		"service/lib/u.py": "z = 1\n",
	})

	files, err := NewGitChanges(5*time.Second).ChangedFiles(context.Background(), filepath.Join(repo, "service"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"app.py", "lib/u.py"}, files)
}
