package workspace

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/quay/zlog"
)

// runGit runs one git invocation with an explicit working directory. The
// process never inherits a chdir; callers must pass dir. Credential prompts
// are disabled and transfers that stall below 1000 B/s for 30 seconds abort.
func runGit(ctx context.Context, dir string, args ...string) error {
	full := append([]string{
		"-c", "credential.helper=",
		"-c", "http.lowSpeedLimit=1000",
		"-c", "http.lowSpeedTime=30",
	}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(buf.String()))
	}
	return nil
}

// gitOutput is runGit but returns stdout.
func gitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	full := append([]string{
		"-c", "credential.helper=",
		"-c", "http.lowSpeedLimit=1000",
		"-c", "http.lowSpeedTime=30",
	}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(errb.String()))
	}
	return out.String(), nil
}

func clone(ctx context.Context, dir, url string, partial bool) error {
	args := []string{"clone", "--no-checkout"}
	if partial {
		args = append(args, "--filter=blob:none")
	}
	args = append(args, url, dir)
	// Clone runs from the parent: dir does not exist yet.
	if err := runGit(ctx, filepath.Dir(dir), args...); err != nil {
		return fmt.Errorf("workspace: clone %s: %w", url, err)
	}
	return nil
}

// update brings an existing tree to the remote head: discard local state,
// drop untracked files, then pull with rebase.
func update(ctx context.Context, dir string) error {
	for _, args := range [][]string{
		{"reset", "--hard"},
		{"clean", "-fdx"},
		{"pull", "--rebase"},
	} {
		if err := runGit(ctx, dir, args...); err != nil {
			return fmt.Errorf("workspace: update: %w", err)
		}
	}
	return nil
}

// ResetHardHead discards any working-tree state before the tree is read.
func (w *Workspace) ResetHardHead(ctx context.Context, dir string) error {
	if err := runGit(ctx, dir, "reset", "--hard", "HEAD"); err != nil {
		return fmt.Errorf("workspace: reset: %w", err)
	}
	return nil
}

// RestoreShallow checks out the remote default branch in a shallow tree.
//
// Shallow or no-checkout clones can land without a usable work tree; the
// default branch name is taken from what the remote reports.
func (w *Workspace) RestoreShallow(ctx context.Context, dir string) error {
	ctx = zlog.ContextWithValues(ctx, "component", "internal/workspace/Workspace.RestoreShallow")
	if _, err := os.Stat(filepath.Join(dir, ".git", "shallow")); err != nil {
		return nil
	}
	branch, err := defaultBranch(ctx, dir)
	if err != nil {
		return err
	}
	zlog.Debug(ctx).
		Str("dir", dir).
		Str("branch", branch).
		Msg("restoring shallow checkout")
	if err := runGit(ctx, dir, "checkout", branch); err != nil {
		return fmt.Errorf("workspace: checkout %s: %w", branch, err)
	}
	return nil
}

// defaultBranch parses the "HEAD branch" line out of `git remote show
// origin`.
func defaultBranch(ctx context.Context, dir string) (string, error) {
	out, err := gitOutput(ctx, dir, "remote", "show", "origin")
	if err != nil {
		return "", fmt.Errorf("workspace: remote show: %w", err)
	}
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if rest, ok := strings.CutPrefix(line, "HEAD branch:"); ok {
			return strings.TrimSpace(rest), nil
		}
	}
	return "", fmt.Errorf("workspace: no HEAD branch reported by origin")
}
