package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// GitRunner provides git commands. Interface for testing.
type GitRunner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecGit implements GitRunner using exec.CommandContext.
type ExecGit struct{}

func (g *ExecGit) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// GitStore is a Store backed by a git working copy.
type GitStore struct {
	git         GitRunner
	dir         string
	remote      string
	branch      string
	authorName  string
	authorEmail string
}

// GitOption configures a GitStore.
type GitOption func(*GitStore)

// WithAuthor sets the committer identity passed with -c on every commit.
func WithAuthor(name, email string) GitOption {
	return func(s *GitStore) {
		s.authorName = name
		s.authorEmail = email
	}
}

// NewGitStore creates a store for the working copy at dir that pushes to
// remote/branch.
func NewGitStore(git GitRunner, dir, remote, branch string, opts ...GitOption) *GitStore {
	if remote == "" {
		remote = "origin"
	}
	if branch == "" {
		branch = "main"
	}
	s := &GitStore{git: git, dir: dir, remote: remote, branch: branch}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GitStore) Dir() string { return s.dir }

func (s *GitStore) Path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *GitStore) Exists(name string) (bool, error) {
	_, err := os.Stat(s.Path(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *GitStore) Touch(name string) error {
	f, err := os.OpenFile(s.Path(name), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("touch %s: %w", name, err)
	}
	return f.Close()
}

func (s *GitStore) Commit(ctx context.Context, names []string, message string) (bool, error) {
	if len(names) == 0 {
		return false, nil
	}
	if _, err := s.git.Run(ctx, s.dir, append([]string{"add", "--"}, names...)...); err != nil {
		return false, err
	}

	staged, err := s.git.Run(ctx, s.dir, append([]string{"diff", "--cached", "--name-only", "--"}, names...)...)
	if err != nil {
		return false, err
	}
	if staged == "" {
		return false, nil
	}

	args := s.identity()
	args = append(args, "commit", "-m", message, "--")
	args = append(args, names...)
	if _, err := s.git.Run(ctx, s.dir, args...); err != nil {
		return false, err
	}
	return true, nil
}

func (s *GitStore) Push(ctx context.Context) error {
	_, err := s.git.Run(ctx, s.dir, "push", s.remote, "HEAD:"+s.branch)
	return err
}

func (s *GitStore) Rebase(ctx context.Context) error {
	args := s.identity()
	args = append(args, "pull", "--rebase", "--autostash", s.remote, s.branch)
	if _, err := s.git.Run(ctx, s.dir, args...); err != nil {
		// Leave the working copy usable for the sweep.
		if _, abortErr := s.git.Run(context.WithoutCancel(ctx), s.dir, "rebase", "--abort"); abortErr != nil {
			slog.Warn("rebase --abort failed, working copy may be mid-rebase", "dir", s.dir, "error", abortErr)
		}
		return err
	}
	return nil
}

func (s *GitStore) Uncommitted(ctx context.Context, patterns ...string) ([]string, error) {
	args := []string{"status", "--porcelain", "--untracked-files=all", "--"}
	out, err := s.git.Run(ctx, s.dir, append(args, patterns...)...)
	if err != nil {
		return nil, err
	}
	return parsePorcelain(out), nil
}

func (s *GitStore) Ahead(ctx context.Context) (int, error) {
	out, err := s.git.Run(ctx, s.dir, "rev-list", "--count", s.remote+"/"+s.branch+"..HEAD")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("parse rev-list count %q: %w", out, err)
	}
	return n, nil
}

func (s *GitStore) identity() []string {
	var args []string
	if s.authorName != "" {
		args = append(args, "-c", "user.name="+s.authorName)
	}
	if s.authorEmail != "" {
		args = append(args, "-c", "user.email="+s.authorEmail)
	}
	return args
}

// parsePorcelain extracts paths from `git status --porcelain` output. Lines
// look like "?? name", " M name" or "A  name"; renames keep the new name.
// Leading whitespace may already be trimmed by the runner.
func parsePorcelain(out string) []string {
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		i := strings.IndexAny(line, " \t")
		if i < 0 {
			continue
		}
		path := strings.TrimSpace(line[i:])
		if j := strings.Index(path, " -> "); j >= 0 {
			path = path[j+4:]
		}
		paths = append(paths, strings.Trim(path, `"`))
	}
	return paths
}
