// Package git reads diffs and commit history from a repository through
// the git CLI.
package git

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/vibe-assist/vibe-assist/internal/types"
)

// Repository runs read-only git commands against one work tree.
// SECURITY: the root is trusted. Commit ids passed to the methods come from
// git itself or from the state cursor and are never shell-interpreted.
type Repository struct {
	// gitPath is the path to the git executable
	gitPath string
	root    string
}

// Open verifies that git is available and that path lies inside a work
// tree. The repository root is resolved with rev-parse.
func Open(ctx context.Context, path string) (*Repository, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}

	// Verify git works
	if err := exec.CommandContext(ctx, gitPath, "version").Run(); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}

	out, err := exec.CommandContext(ctx, gitPath, "-C", path, "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotARepository, path)
	}

	return &Repository{gitPath: gitPath, root: strings.TrimSpace(string(out))}, nil
}

// Root returns the top-level directory of the work tree
func (r *Repository) Root() string {
	return r.root
}

// run executes git in the repository and returns stdout. Stderr is folded
// into the error.
func (r *Repository) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.gitPath, append([]string{"-C", r.root}, args...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("git %s failed: %w: %s", args[0], err, msg)
		}
		return "", fmt.Errorf("git %s failed: %w", args[0], err)
	}
	return string(out), nil
}

// Head returns the commit id HEAD points at, or ErrNoCommits on an unborn branch
func (r *Repository) Head(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "--verify", "--quiet", "HEAD^{commit}")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", ErrNoCommits
		}
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// WorkingTreeDiff returns staged and unstaged changes against HEAD. Before
// the first commit it concatenates the index and work tree diffs instead.
func (r *Repository) WorkingTreeDiff(ctx context.Context) (string, error) {
	if _, err := r.Head(ctx); err != nil {
		if !errors.Is(err, ErrNoCommits) {
			return "", err
		}
		staged, err := r.run(ctx, "diff", "--no-color", "--cached")
		if err != nil {
			return "", err
		}
		unstaged, err := r.run(ctx, "diff", "--no-color")
		if err != nil {
			return "", err
		}
		return staged + unstaged, nil
	}
	return r.run(ctx, "diff", "--no-color", "HEAD")
}

// Status returns the porcelain status of the work tree
func (r *Repository) Status(ctx context.Context) (*Status, error) {
	output, err := r.run(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseStatus(output)
}

func parseStatus(output string) (*Status, error) {
	status := &Status{
		Modified:  []string{},
		Untracked: []string{},
		Deleted:   []string{},
		Added:     []string{},
		Renamed:   []string{},
	}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 3 {
			continue
		}

		statusCode := line[0:2]
		filePath := line[3:]

		// XY where X=index, Y=working tree
		// Reference: https://git-scm.com/docs/git-status#_short_format
		switch {
		case statusCode == "??":
			status.Untracked = append(status.Untracked, filePath)
		case statusCode == "A " || statusCode == "AM":
			status.Added = append(status.Added, filePath)
		case statusCode == "D " || statusCode == " D":
			status.Deleted = append(status.Deleted, filePath)
		case statusCode[0] == 'R':
			if _, to, ok := strings.Cut(filePath, " -> "); ok {
				filePath = to
			}
			status.Renamed = append(status.Renamed, filePath)
		default:
			// Modified, copied, unmerged
			status.Modified = append(status.Modified, filePath)
		}

		status.HasChanges = true
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse git status: %w", err)
	}
	return status, nil
}

// IsAncestor reports whether ancestor is reachable from descendant
func (r *Repository) IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	_, err := r.run(ctx, "merge-base", "--is-ancestor", ancestor, descendant)
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, err
}

// CommitsSince lists the commits between cursor and HEAD, oldest first,
// restricted to the ancestry path so every listed commit descends from the
// cursor. An empty cursor lists the whole history of HEAD.
func (r *Repository) CommitsSince(ctx context.Context, cursor string) ([]string, error) {
	args := []string{"rev-list", "--reverse", "--topo-order"}
	if cursor == "" {
		args = append(args, "HEAD")
	} else {
		args = append(args, "--ancestry-path", cursor+"..HEAD")
	}

	out, err := r.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return strings.Fields(out), nil
}

// commitFormat separates fields with NUL so messages can hold anything
const commitFormat = "%H%x00%P%x00%an%x00%ae%x00%aI%x00%B"

// Commit returns the metadata of one commit
func (r *Repository) Commit(ctx context.Context, id string) (types.Commit, error) {
	out, err := r.run(ctx, "show", "-s", "--no-color", "--format="+commitFormat, id, "--")
	if err != nil {
		return types.Commit{}, err
	}
	return parseCommit(out)
}

func parseCommit(out string) (types.Commit, error) {
	fields := strings.SplitN(out, "\x00", 6)
	if len(fields) != 6 {
		return types.Commit{}, fmt.Errorf("unexpected commit format: %d fields", len(fields))
	}

	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(fields[4]))
	if err != nil {
		return types.Commit{}, fmt.Errorf("invalid commit timestamp %q: %w", fields[4], err)
	}

	return types.Commit{
		ID:        strings.TrimSpace(fields[0]),
		Parents:   strings.Fields(fields[1]),
		Author:    fields[2],
		Email:     fields[3],
		Timestamp: ts,
		Message:   strings.TrimSpace(fields[5]),
	}, nil
}

// CommitDiff returns the patch a commit introduces. Merges are diffed
// against their first parent.
func (r *Repository) CommitDiff(ctx context.Context, id string) (string, error) {
	return r.run(ctx, "show", "--no-color", "--format=", "--patch", "--diff-merges=first-parent", id, "--")
}

// LatestCommitSummary returns "hash|author|email|subject" for HEAD
func (r *Repository) LatestCommitSummary(ctx context.Context) (string, error) {
	if _, err := r.Head(ctx); err != nil {
		return "", err
	}
	out, err := r.run(ctx, "log", "-1", "--pretty=format:%H|%an|%ae|%s")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CurrentBranch returns the checked-out branch name, or "HEAD" when detached
func (r *Repository) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "HEAD", nil
		}
		return "", err
	}
	return strings.TrimSpace(out), nil
}
