// Package controller orchestrates the import pipeline: queue consumption,
// workspace sync, extraction, and the graph and relational writes, plus the
// cooperating analysis and packaging tasks.
package controller

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/quay/zlog"

	cratespro "github.com/crates-pro/crates-pro"
	"github.com/crates-pro/crates-pro/analysis"
	"github.com/crates-pro/crates-pro/datastore"
	"github.com/crates-pro/crates-pro/graph"
	"github.com/crates-pro/crates-pro/internal/config"
	"github.com/crates-pro/crates-pro/internal/manifest"
	"github.com/crates-pro/crates-pro/internal/workspace"
	"github.com/crates-pro/crates-pro/queue"
)

// checkpointEvery is the message count between CSV snapshot flushes.
const checkpointEvery = 1000

// Controller runs the long-lived tasks. The three tasks share one
// packagingGate; the writer's seen sets are owned here and never cross
// tasks.
type Controller struct {
	cfg *config.Config

	consumer   *queue.Consumer
	results    *analysis.ResultConsumer
	dispatcher *analysis.Dispatcher
	ws         *workspace.Workspace
	writer     *graph.Writer
	db         datastore.Store

	gate packagingGate
	// megaBase joins relative mega_url paths into absolute clone URLs.
	megaBase string
}

// New wires a Controller from its collaborators.
func New(cfg *config.Config, consumer *queue.Consumer, results *analysis.ResultConsumer, dispatcher *analysis.Dispatcher, ws *workspace.Workspace, writer *graph.Writer, db datastore.Store, megaBase string) *Controller {
	return &Controller{
		cfg:        cfg,
		consumer:   consumer,
		results:    results,
		dispatcher: dispatcher,
		ws:         ws,
		writer:     writer,
		db:         db,
		megaBase:   megaBase,
	}
}

// Run starts the enabled tasks and blocks until SIGTERM or a fatal startup
// error. Per-event errors never propagate past the event loop.
func (c *Controller) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	errc := make(chan error, 3)
	if c.cfg.Import {
		go func() { errc <- c.importTask(ctx) }()
	}
	if c.cfg.Analysis {
		go func() { errc <- c.analysisTask(ctx) }()
	}
	if c.cfg.Package {
		go func() { errc <- c.packageTask(ctx) }()
	}

	n := 0
	if c.cfg.Import {
		n++
	}
	if c.cfg.Analysis {
		n++
	}
	if c.cfg.Package {
		n++
	}
	var first error
	for i := 0; i < n; i++ {
		if err := <-errc; err != nil && !errors.Is(err, context.Canceled) && first == nil {
			first = err
		}
	}
	return first
}

// importTask is the A→B→C→D→E pipeline: one message at a time, strictly
// serialized within an event. On termination it finishes the current
// message, writes a final checkpoint, and exits.
func (c *Controller) importTask(ctx context.Context) error {
	ctx = zlog.ContextWithValues(ctx, "task", "import")
	zlog.Info(ctx).Msg("import task started")
	count := 0
	for {
		if err := c.gate.Wait(ctx); err != nil {
			return c.finalCheckpoint(ctx)
		}
		msg, err := c.consumer.ConsumeOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return c.finalCheckpoint(ctx)
			}
			zlog.Warn(ctx).Err(err).Msg("consume failed, retrying")
			time.Sleep(time.Second)
			continue
		}
		if err := c.processEvent(ctx, msg); err != nil {
			// Transient failure: the offset stays uncommitted and the event
			// is replayed after restart.
			zlog.Error(ctx).
				Str("crate", msg.Event.CrateName).
				Err(err).
				Msg("event processing failed")
			time.Sleep(time.Second)
		}
		if ctx.Err() != nil {
			zlog.Info(ctx).Msg("received termination signal, exiting after current message")
			return c.finalCheckpoint(ctx)
		}
		count++
		if count%checkpointEvery == 0 {
			if err := c.writer.Snapshot().WriteCSV(c.cfg.ExportDir); err != nil {
				zlog.Error(ctx).Err(err).Msg("checkpoint export failed")
			}
		}
	}
}

// processEvent runs one event through clone, extract, graph write, mirror
// write, dispatch, and offset commit.
func (c *Controller) processEvent(ctx context.Context, msg *queue.Message) error {
	ev := &msg.Event
	ctx = zlog.ContextWithValues(ctx, "crate", ev.CrateName)

	cloneURL, err := c.resolveMegaURL(ev.MegaURL)
	if err != nil {
		// Poison-adjacent: the URL will never parse differently on replay.
		zlog.Warn(ctx).Str("mega_url", ev.MegaURL).Err(err).Msg("skipping event with bad mega_url")
		return c.consumer.Commit(ctx, msg)
	}
	namespace, err := cratespro.ExtractNamespace(cloneURL)
	if err != nil {
		zlog.Warn(ctx).Str("mega_url", ev.MegaURL).Err(err).Msg("skipping event with bad namespace")
		return c.consumer.Commit(ctx, msg)
	}
	owner, repo, _ := strings.Cut(namespace, "/")

	dir, err := c.ws.EnsureClone(ctx, owner, repo, cloneURL, true)
	if err != nil {
		// Missing upstream: flag it and advance. The repo may come back;
		// until then the event is not retriable.
		zlog.Warn(ctx).Str("url", cloneURL).Err(err).Msg("repo unavailable for this event")
		if err := c.db.MarkRepoInvalid(ctx, namespace, ev.CrateName); err != nil {
			zlog.Error(ctx).Err(err).Msg("flagging invalid repo failed")
		}
		return c.consumer.Commit(ctx, msg)
	}
	if err := c.ws.RestoreShallow(ctx, dir); err != nil {
		zlog.Warn(ctx).Err(err).Msg("shallow restore failed")
	}
	if err := c.ws.ResetHardHead(ctx, dir); err != nil {
		zlog.Warn(ctx).Err(err).Msg("reset failed")
	}

	infos, err := manifest.ExtractPrograms(ctx, dir, namespace, ev.MegaURL)
	if err != nil {
		return fmt.Errorf("extracting programs: %w", err)
	}
	records, err := manifest.ExtractVersions(ctx, dir)
	if err != nil {
		return fmt.Errorf("extracting versions: %w", err)
	}

	programs := make([]*cratespro.Program, 0, len(infos))
	licenses := make(map[string]string, len(infos))
	for i := range infos {
		p := &infos[i].Program
		// Keep the id of a program mirrored by an earlier event.
		known, err := c.db.ProgramByName(ctx, namespace, p.Name)
		switch {
		case err == nil:
			p.ID = known.ID
		case !errors.Is(err, datastore.ErrNotFound):
			return fmt.Errorf("looking up program: %w", err)
		}
		if ev.GithubURL != "" {
			p.GithubURL = ev.GithubURL
		}
		programs = append(programs, p)
		licenses[p.Name] = infos[i].License
	}

	if err := c.writer.WritePrograms(ctx, programs); err != nil {
		return fmt.Errorf("writing programs to graph: %w", err)
	}
	written, err := c.writer.WriteVersions(ctx, records)
	if err != nil {
		return fmt.Errorf("writing versions to graph: %w", err)
	}

	// Mirror the same facts relationally.
	for _, p := range programs {
		if err := c.db.UpsertProgram(ctx, p, licenses[p.Name]); err != nil {
			return fmt.Errorf("mirroring program: %w", err)
		}
	}
	for i := range written {
		wv := &written[i]
		if err := c.db.UpsertVersion(ctx, &wv.Version, wv.Deps); err != nil {
			return fmt.Errorf("mirroring version: %w", err)
		}
	}
	if err := c.db.UpsertSyncStatus(ctx, ev); err != nil {
		return fmt.Errorf("mirroring sync status: %w", err)
	}

	if c.dispatcher != nil {
		for i := range written {
			wv := &written[i]
			err := c.dispatcher.Dispatch(ctx, namespace, &cratespro.ScanRequest{
				Name:     wv.Version.Name,
				Version:  wv.Version.Version,
				RepoPath: dir,
				GitURL:   cloneURL,
			})
			if err != nil {
				zlog.Warn(ctx).Str("key", wv.Version.Key).Err(err).Msg("scan dispatch failed")
			}
		}
	}

	return c.consumer.Commit(ctx, msg)
}

// resolveMegaURL joins a relative mega_url path with the configured base.
func (c *Controller) resolveMegaURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("controller: parsing mega_url: %w", err)
	}
	if u.IsAbs() {
		return raw, nil
	}
	base, err := url.Parse(c.megaBase)
	if err != nil {
		return "", fmt.Errorf("controller: parsing mega base: %w", err)
	}
	joined, err := base.Parse(strings.TrimPrefix(raw, "/"))
	if err != nil {
		return "", fmt.Errorf("controller: joining mega_url: %w", err)
	}
	return joined.String(), nil
}

// analysisTask drains scanner results, pausing while packaging runs.
func (c *Controller) analysisTask(ctx context.Context) error {
	ctx = zlog.ContextWithValues(ctx, "task", "analysis")
	zlog.Info(ctx).Msg("analysis task started")
	for {
		if err := c.gate.Wait(ctx); err != nil {
			return nil
		}
		if err := c.results.ProcessOne(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			zlog.Warn(ctx).Err(err).Msg("result consume failed, retrying")
			time.Sleep(time.Second)
		}
	}
}

// packageTask periodically raises the gate, exports a snapshot, and sleeps.
func (c *Controller) packageTask(ctx context.Context) error {
	ctx = zlog.ContextWithValues(ctx, "task", "package")
	zlog.Info(ctx).Msg("package task started")
	for {
		c.gate.Set()
		if err := c.writer.Snapshot().WriteCSV(c.cfg.ExportDir); err != nil {
			zlog.Error(ctx).Err(err).Msg("snapshot export failed")
		} else {
			zlog.Info(ctx).Str("dir", c.cfg.ExportDir).Msg("snapshot exported")
		}
		c.gate.Clear()
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.PackageInterval):
		}
	}
}

// finalCheckpoint writes the shutdown snapshot.
func (c *Controller) finalCheckpoint(ctx context.Context) error {
	zlog.Info(ctx).Msg("writing final checkpoint")
	if err := c.writer.Snapshot().WriteCSV(c.cfg.ExportDir); err != nil {
		return fmt.Errorf("final checkpoint: %w", err)
	}
	return nil
}
