package guardian

import (
	"bufio"
	"context"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ChangedFilesProvider lists the root-relative slash paths that differ from the
// last committed state.
type ChangedFilesProvider interface {
	ChangedFiles(ctx context.Context, root string) ([]string, error)
}

// ChangedFilesFunc adapts a function to ChangedFilesProvider.
type ChangedFilesFunc func(ctx context.Context, root string) ([]string, error)

func (f ChangedFilesFunc) ChangedFiles(ctx context.Context, root string) ([]string, error) {
	return f(ctx, root)
}

// GitChanges asks git for the working tree status. Any failure, including a
// missing git binary or a root outside a repository, yields no changes.
type GitChanges struct {
	GitPath string
	Timeout time.Duration
}

// NewGitChanges returns a provider running git with the given timeout.
func NewGitChanges(timeout time.Duration) *GitChanges {
	return &GitChanges{GitPath: "git", Timeout: timeout}
}

func (g *GitChanges) ChangedFiles(ctx context.Context, root string) ([]string, error) {
	gitPath := g.GitPath
	if gitPath == "" {
		gitPath = "git"
	}
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultOptions().VCSTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Porcelain paths are relative to the repository top level, not to root.
	prefix, err := exec.CommandContext(ctx, gitPath, "-C", root, "rev-parse", "--show-prefix").Output()
	if err != nil {
		slog.Debug("vcs: not a git work tree", "root", root, "error", err)
		return nil, nil
	}
	out, err := exec.CommandContext(ctx, gitPath, "-C", root, "status", "--porcelain", "--untracked-files=all").Output()
	if err != nil {
		slog.Debug("vcs: git status failed", "root", root, "error", err)
		return nil, nil
	}
	return parsePorcelain(string(out), strings.TrimSpace(string(prefix))), nil
}

// parsePorcelain extracts paths from `git status --porcelain` output and makes
// them relative to prefix. Renames report the new path.
func parsePorcelain(output, prefix string) []string {
	seen := make(map[string]struct{})
	files := make([]string, 0)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 {
			continue
		}
		path := line[3:]
		if idx := strings.Index(path, " -> "); idx >= 0 {
			path = path[idx+len(" -> "):]
		}
		if strings.HasPrefix(path, `"`) {
			if unquoted, err := strconv.Unquote(path); err == nil {
				path = unquoted
			}
		}
		if prefix != "" {
			if !strings.HasPrefix(path, prefix) {
				continue
			}
			path = strings.TrimPrefix(path, prefix)
		}
		if path == "" {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}
	return files
}
