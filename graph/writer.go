package graph

import (
	"context"
	"errors"

	"github.com/quay/zlog"

	cratespro "github.com/crates-pro/crates-pro"
)

// programKey identifies a program in the seen set. Keying on (name, megaURL)
// instead of name alone lets a renamed or moved repository re-enter the
// pipeline.
type programKey struct {
	Name    string
	MegaURL string
}

// Writer performs deduplicated graph writes for the import pipeline.
//
// The seen sets live for the writer's lifetime, which the controller scopes
// to its own: they are per-instance caches, not globals, and are never shared
// across tasks. Store-level unique constraints are the real idempotence
// guarantee; the sets only save round trips on replays within a run.
type Writer struct {
	store Store

	seenPrograms map[programKey]struct{}
	seenVersions map[string]struct{}
	// byName resolves a crate name to its program for edge construction.
	byName map[string]*cratespro.Program

	snap *Snapshot
}

// NewWriter returns a Writer over store. The snapshot accumulates every row
// written and backs the periodic CSV checkpoint.
func NewWriter(store Store) *Writer {
	return &Writer{
		store:        store,
		seenPrograms: make(map[programKey]struct{}),
		seenVersions: make(map[string]struct{}),
		byName:       make(map[string]*cratespro.Program),
		snap:         NewSnapshot(),
	}
}

// Snapshot exposes the accumulated rows for checkpointing.
func (w *Writer) Snapshot() *Snapshot { return w.snap }

// WritePrograms upserts the programs extracted at HEAD, skipping those
// already seen under the same (name, megaURL).
func (w *Writer) WritePrograms(ctx context.Context, programs []*cratespro.Program) error {
	ctx = zlog.ContextWithValues(ctx, "component", "graph/Writer.WritePrograms")
	for _, p := range programs {
		key := programKey{Name: p.Name, MegaURL: p.MegaURL}
		if _, ok := w.seenPrograms[key]; ok {
			continue
		}
		if err := w.store.UpsertProgram(ctx, p); err != nil {
			return err
		}
		w.seenPrograms[key] = struct{}{}
		w.byName[p.Name] = p
		w.snap.AddProgram(p)
		zlog.Debug(ctx).
			Str("name", p.Name).
			Str("kind", string(p.Kind)).
			Msg("program inserted")
	}
	return nil
}

// WrittenVersion is one version the writer committed, handed back so the
// relational mirror and the analysis dispatch see the same facts.
type WrittenVersion struct {
	Version cratespro.Version
	Deps    []cratespro.Dependency
}

// WriteVersions upserts the extracted dependency records not yet in the
// version-seen set and returns what was written. Records whose owning
// program is unknown are skipped; later ingest of the owning repository
// picks them up.
func (w *Writer) WriteVersions(ctx context.Context, records []cratespro.DependencyRecord) ([]WrittenVersion, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "graph/Writer.WriteVersions")
	var written []WrittenVersion
	for i := range records {
		rec := &records[i]
		key := rec.Key()
		if _, ok := w.seenVersions[key]; ok {
			continue
		}
		owner, err := w.ownerOf(ctx, rec.CrateName)
		if err != nil {
			return written, err
		}
		if owner == nil {
			zlog.Debug(ctx).
				Str("key", key).
				Msg("no owning program yet, skipping record")
			continue
		}
		v := cratespro.NewVersion(owner.ID, rec.CrateName, rec.Version, owner.Kind)
		if err := w.store.UpsertVersion(ctx, &v, rec.Dependencies); err != nil {
			return written, err
		}
		w.seenVersions[key] = struct{}{}
		w.snap.AddVersion(&v, rec.Dependencies)
		written = append(written, WrittenVersion{Version: v, Deps: rec.Dependencies})
	}
	return written, nil
}

func (w *Writer) ownerOf(ctx context.Context, name string) (*cratespro.Program, error) {
	if p, ok := w.byName[name]; ok {
		return p, nil
	}
	p, err := w.store.ProgramByName(ctx, name)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	w.byName[name] = p
	return p, nil
}
