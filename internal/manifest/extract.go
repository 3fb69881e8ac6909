// Package manifest extracts package and version facts from a local git
// repository.
//
// Two views are produced: the programs present at HEAD, and the dependency
// records declared across every tagged version. Both read git objects
// directly, so trees cloned with --no-checkout work without a checkout pass.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/uuid"
	"github.com/quay/zlog"

	cratespro "github.com/crates-pro/crates-pro"
)

const manifestName = "Cargo.toml"

// ProgramInfo is one classified package found at HEAD.
type ProgramInfo struct {
	Program cratespro.Program
	License string
}

// ExtractPrograms walks the HEAD tree for Cargo.toml files and returns the
// classified packages. Workspace-only manifests are skipped; a manifest that
// fails to parse is logged and skipped.
func ExtractPrograms(ctx context.Context, dir, namespace, megaURL string) ([]ProgramInfo, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "internal/manifest/ExtractPrograms")
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("manifest: opening %s: %w", dir, err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("manifest: resolving HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("manifest: reading HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("manifest: reading HEAD tree: %w", err)
	}

	paths, err := treePaths(tree)
	if err != nil {
		return nil, err
	}

	var out []ProgramInfo
	for _, p := range paths.manifests {
		content, err := fileContents(tree, p)
		if err != nil {
			zlog.Warn(ctx).Str("path", p).Err(err).Msg("unreadable manifest")
			continue
		}
		m, err := parseManifest(content)
		switch {
		case errors.Is(err, errWorkspaceOnly):
			continue
		case err != nil:
			zlog.Warn(ctx).Str("path", p).Err(err).Msg("skipping unparseable manifest")
			continue
		}
		crateDir := path.Dir(p)
		kind := classify(m,
			paths.files[path.Join(crateDir, "src", "lib.rs")],
			paths.files[path.Join(crateDir, "src", "main.rs")],
		)
		out = append(out, ProgramInfo{
			Program: cratespro.Program{
				ID:          uuid.New().String(),
				Name:        m.Name,
				Description: m.Description,
				Namespace:   namespace,
				MegaURL:     megaURL,
				Kind:        kind,
			},
			License: m.License,
		})
	}
	return out, nil
}

// ExtractVersions walks every annotated and lightweight tag, peels it to a
// commit, and parses each Cargo.toml of that commit's tree into a dependency
// record. Extraction is a pure function of the repository snapshot; ordering
// of the result is not significant.
func ExtractVersions(ctx context.Context, dir string) ([]cratespro.DependencyRecord, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "internal/manifest/ExtractVersions")
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("manifest: opening %s: %w", dir, err)
	}
	tags, err := repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("manifest: listing tags: %w", err)
	}
	defer tags.Close()

	var out []cratespro.DependencyRecord
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		commit, err := peelToCommit(repo, ref)
		if err != nil {
			zlog.Warn(ctx).
				Str("tag", ref.Name().Short()).
				Err(err).
				Msg("tag does not peel to a commit")
			return nil
		}
		tree, err := commit.Tree()
		if err != nil {
			return fmt.Errorf("manifest: tree of tag %s: %w", ref.Name().Short(), err)
		}
		recs, err := recordsOfTree(ctx, tree)
		if err != nil {
			return err
		}
		out = append(out, recs...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// peelToCommit resolves either an annotated tag object or a lightweight tag
// reference to its commit.
func peelToCommit(repo *git.Repository, ref *plumbing.Reference) (*object.Commit, error) {
	if tag, err := repo.TagObject(ref.Hash()); err == nil {
		return tag.Commit()
	}
	return repo.CommitObject(ref.Hash())
}

// recordsOfTree parses every Cargo.toml in one commit tree.
func recordsOfTree(ctx context.Context, tree *object.Tree) ([]cratespro.DependencyRecord, error) {
	var out []cratespro.DependencyRecord
	iter := tree.Files()
	defer iter.Close()
	err := iter.ForEach(func(f *object.File) error {
		if path.Base(f.Name) != manifestName {
			return nil
		}
		content, err := f.Contents()
		if err != nil {
			return fmt.Errorf("manifest: reading %s: %w", f.Name, err)
		}
		m, err := parseManifest(content)
		if err != nil {
			// Workspace roots and broken manifests contribute nothing at
			// this version.
			if !errors.Is(err, errWorkspaceOnly) {
				zlog.Warn(ctx).Str("path", f.Name).Err(err).Msg("skipping unparseable manifest")
			}
			return nil
		}
		if m.Version == "" {
			return nil
		}
		out = append(out, cratespro.DependencyRecord{
			CrateName:    m.Name,
			Version:      m.Version,
			Dependencies: m.Deps,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// treeIndex is a listing of one tree: all file paths, plus the manifest
// paths in walk order.
type treeIndex struct {
	files     map[string]bool
	manifests []string
}

func treePaths(tree *object.Tree) (*treeIndex, error) {
	idx := &treeIndex{files: make(map[string]bool)}
	iter := tree.Files()
	defer iter.Close()
	err := iter.ForEach(func(f *object.File) error {
		idx.files[f.Name] = true
		if path.Base(f.Name) == manifestName {
			idx.manifests = append(idx.manifests, f.Name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("manifest: walking tree: %w", err)
	}
	return idx, nil
}

func fileContents(tree *object.Tree, p string) (string, error) {
	f, err := tree.File(p)
	if err != nil {
		return "", err
	}
	return f.Contents()
}
