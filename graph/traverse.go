package graph

import "context"

// DepNodeCap bounds transitive expansion. On hitting the cap a traversal
// returns the partial result with the truncated flag set; that is not an
// error.
const DepNodeCap = 500

// AllDependencies returns the transitive depends_on closure of start,
// excluding start itself, capped at DepNodeCap nodes.
func AllDependencies(ctx context.Context, q Querier, start string) (keys []string, truncated bool, err error) {
	return bfs(ctx, q.DirectDependencies, start)
}

// AllDependents returns the transitive reverse closure of start, excluding
// start itself, capped at DepNodeCap nodes.
//
// If the initial frontier alone exceeds the cap the whole traversal is
// skipped and an empty result is returned with truncated set: popular
// libraries have explosive reverse fan-out and expanding them is all cost
// for no usable answer.
func AllDependents(ctx context.Context, q Querier, start string) (keys []string, truncated bool, err error) {
	direct, err := q.DirectDependents(ctx, start)
	if err != nil {
		return nil, false, err
	}
	if len(direct) > DepNodeCap {
		return nil, true, nil
	}
	return bfs(ctx, q.DirectDependents, start)
}

func bfs(ctx context.Context, next func(context.Context, string) ([]string, error), start string) ([]string, bool, error) {
	seen := map[string]struct{}{start: {}}
	var out []string
	queue := []string{start}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		cur := queue[0]
		queue = queue[1:]
		neighbors, err := next(ctx, cur)
		if err != nil {
			return nil, false, err
		}
		for _, n := range neighbors {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
			if len(out) >= DepNodeCap {
				return out, true, nil
			}
			queue = append(queue, n)
		}
	}
	return out, false, nil
}
