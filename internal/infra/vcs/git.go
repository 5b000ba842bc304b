package vcs

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// GitFetcher is the source-checkout collaborator. It shells out to git with
// a fixed argument list; the checkout itself is plain I/O plumbing.
type GitFetcher struct{}

func NewGitFetcher() *GitFetcher { return &GitFetcher{} }

func (GitFetcher) Fetch(ctx context.Context, repoURL, branch, dest string) error {
	if _, err := os.Stat(filepath.Join(dest, ".git")); err == nil {
		pull := exec.CommandContext(ctx, "git", "-C", dest, "pull", "--ff-only", "origin", branch)
		if out, err := pull.CombinedOutput(); err != nil {
			return fmt.Errorf("git pull %s: %w (output=%s)", branch, err, string(out))
		}
		return nil
	}

	clone := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--branch", branch, repoURL, dest)
	if out, err := clone.CombinedOutput(); err != nil {
		return fmt.Errorf("git clone %s: %w (output=%s)", repoURL, err, string(out))
	}
	return nil
}
