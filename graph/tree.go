package graph

import (
	"context"

	cratespro "github.com/crates-pro/crates-pro"
)

// CveCounter reports the number of advisories affecting the exact version
// named by a key. The view layer supplies one backed by the advisory store.
type CveCounter func(ctx context.Context, name, version string) (int, error)

// DependencyTree expands start into a tree, cycle-broken by a visited set
// seeded with the root's key. A node already present anywhere in the tree is
// not repeated: later occurrences of its key are dropped from the children.
func DependencyTree(ctx context.Context, q Querier, count CveCounter, start string) (*cratespro.DependencyTreeNode, error) {
	visited := map[string]struct{}{start: {}}
	return expand(ctx, q, count, start, visited)
}

func expand(ctx context.Context, q Querier, count CveCounter, key string, visited map[string]struct{}) (*cratespro.DependencyTreeNode, error) {
	node := &cratespro.DependencyTreeNode{
		NameAndVersion: key,
		Children:       []*cratespro.DependencyTreeNode{},
	}
	if count != nil {
		name, version, ok := cratespro.SplitVersionKey(key)
		if ok {
			n, err := count(ctx, name, version)
			if err != nil {
				return nil, err
			}
			node.CveCount = n
		}
	}
	deps, err := q.DirectDependencies(ctx, key)
	if err != nil {
		return nil, err
	}
	for _, dep := range deps {
		if _, ok := visited[dep]; ok {
			continue
		}
		visited[dep] = struct{}{}
		child, err := expand(ctx, q, count, dep, visited)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}
