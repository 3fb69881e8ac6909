// Package workspace manages the local git working trees that release events
// are parsed from.
//
// Trees live under a configured base directory at
// <base>/<h0>/<h1>/<owner>/<repo>, where h0 and h1 are the first two byte
// pairs of the SHA-256 of the owner. The two-level bucketing keeps any single
// directory from accumulating the whole ecosystem.
package workspace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quay/zlog"
)

// Workspace owns the working trees under Base.
type Workspace struct {
	// Base is the root directory all trees are created under.
	Base string
}

// New returns a Workspace rooted at base.
func New(base string) *Workspace {
	return &Workspace{Base: base}
}

// Dir reports the working-tree directory for (owner, repo).
func (w *Workspace) Dir(owner, repo string) string {
	sum := sha256.Sum256([]byte(owner))
	h := hex.EncodeToString(sum[:])
	return filepath.Join(w.Base, h[0:2], h[2:4], owner, repo)
}

// EnsureClone makes sure a current working tree for (owner, repo) exists and
// returns its path.
//
// An existing tree is updated in place; if the update fails the tree is
// removed and cloned fresh. Errors are "repo unavailable for this event":
// the caller logs and moves on, they are never fatal to the event loop.
func (w *Workspace) EnsureClone(ctx context.Context, owner, repo, url string, partial bool) (string, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "internal/workspace/Workspace.EnsureClone")
	dir := w.Dir(owner, repo)

	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		if err := update(ctx, dir); err == nil {
			return dir, nil
		}
		zlog.Warn(ctx).
			Str("dir", dir).
			Msg("update failed, removing and re-cloning")
		if err := os.RemoveAll(dir); err != nil {
			return "", fmt.Errorf("workspace: removing stale tree: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", fmt.Errorf("workspace: creating bucket directories: %w", err)
	}
	if err := clone(ctx, dir, url, partial); err != nil {
		return "", err
	}
	zlog.Debug(ctx).
		Str("dir", dir).
		Str("url", url).
		Msg("cloned")
	return dir, nil
}
