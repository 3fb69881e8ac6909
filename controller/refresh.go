package controller

import (
	"context"
	"strings"

	"github.com/quay/zlog"
	"golang.org/x/sync/errgroup"
)

// refreshConcurrency caps the repository-sync fan-out.
const refreshConcurrency = 8

// RefreshRepos re-syncs the working trees of every known program with
// bounded concurrency. Individual failures are logged and do not stop the
// sweep.
func (c *Controller) RefreshRepos(ctx context.Context) error {
	ctx = zlog.ContextWithValues(ctx, "component", "controller/Controller.RefreshRepos")
	programs, err := c.db.AllPrograms(ctx)
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	for _, p := range programs {
		if p.MegaURL == "" {
			continue
		}
		g.Go(func() error {
			cloneURL, err := c.resolveMegaURL(p.MegaURL)
			if err != nil {
				zlog.Warn(ctx).Str("name", p.Name).Err(err).Msg("skipping refresh, bad url")
				return nil
			}
			owner, repo, ok := strings.Cut(p.Namespace, "/")
			if !ok {
				return nil
			}
			if _, err := c.ws.EnsureClone(ctx, owner, repo, cloneURL, true); err != nil {
				zlog.Warn(ctx).Str("name", p.Name).Err(err).Msg("refresh failed")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	zlog.Info(ctx).Int("programs", len(programs)).Msg("repository refresh finished")
	return nil
}
