package graph

import (
	"context"
	"testing"

	"github.com/quay/zlog"

	cratespro "github.com/crates-pro/crates-pro"
)

// fakeStore counts writes and remembers programs by name.
type fakeStore struct {
	mapQuerier
	programs       map[string]*cratespro.Program
	programUpserts int
	versionUpserts int
	dependsOnEdges int
}

func newFakeStore() *fakeStore {
	return &fakeStore{programs: make(map[string]*cratespro.Program)}
}

func (f *fakeStore) UpsertProgram(_ context.Context, p *cratespro.Program) error {
	f.programUpserts++
	f.programs[p.Name] = p
	return nil
}

func (f *fakeStore) UpsertVersion(_ context.Context, v *cratespro.Version, deps []cratespro.Dependency) error {
	f.versionUpserts++
	f.dependsOnEdges += len(deps)
	return nil
}

func (f *fakeStore) ProgramByName(_ context.Context, name string) (*cratespro.Program, error) {
	p, ok := f.programs[name]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) Close(context.Context) error { return nil }

func ingest(t *testing.T, w *Writer, ctx context.Context) {
	t.Helper()
	programs := []*cratespro.Program{{
		ID:        "id-foo",
		Name:      "foo",
		Namespace: "alice/foo",
		MegaURL:   "https://example.com/alice/foo.git",
		Kind:      cratespro.Library,
	}}
	records := []cratespro.DependencyRecord{{
		CrateName:    "foo",
		Version:      "0.1.0",
		Dependencies: []cratespro.Dependency{{Name: "bar", Version: "1"}},
	}}
	if err := w.WritePrograms(ctx, programs); err != nil {
		t.Fatal(err)
	}
	if _, err := w.WriteVersions(ctx, records); err != nil {
		t.Fatal(err)
	}
}

func TestWriterIngest(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	store := newFakeStore()
	w := NewWriter(store)

	ingest(t, w, ctx)

	if store.programUpserts != 1 || store.versionUpserts != 1 || store.dependsOnEdges != 1 {
		t.Errorf("writes: programs=%d versions=%d edges=%d",
			store.programUpserts, store.versionUpserts, store.dependsOnEdges)
	}
}

// Processing the same event twice must change no counts.
func TestWriterReplayIsNoOp(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	store := newFakeStore()
	w := NewWriter(store)

	ingest(t, w, ctx)
	ingest(t, w, ctx)

	if store.programUpserts != 1 || store.versionUpserts != 1 {
		t.Errorf("replay reached the store: programs=%d versions=%d",
			store.programUpserts, store.versionUpserts)
	}
}

// A record whose owning program was never ingested contributes nothing.
func TestWriterSkipsUnknownOwner(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	store := newFakeStore()
	w := NewWriter(store)

	records := []cratespro.DependencyRecord{{CrateName: "ghost", Version: "1.0.0"}}
	written, err := w.WriteVersions(ctx, records)
	if err != nil {
		t.Fatal(err)
	}
	if len(written) != 0 {
		t.Errorf("got %d written versions, want 0", len(written))
	}
	if store.versionUpserts != 0 {
		t.Errorf("got %d version upserts, want 0", store.versionUpserts)
	}
}

// A program renamed or moved to a new URL re-enters the pipeline.
func TestWriterRenamedRepoReenters(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	store := newFakeStore()
	w := NewWriter(store)

	p := &cratespro.Program{ID: "id-1", Name: "foo", MegaURL: "https://example.com/a/foo.git", Kind: cratespro.Library}
	if err := w.WritePrograms(ctx, []*cratespro.Program{p}); err != nil {
		t.Fatal(err)
	}
	moved := &cratespro.Program{ID: "id-1", Name: "foo", MegaURL: "https://example.com/b/foo.git", Kind: cratespro.Library}
	if err := w.WritePrograms(ctx, []*cratespro.Program{moved}); err != nil {
		t.Fatal(err)
	}
	if store.programUpserts != 2 {
		t.Errorf("got %d upserts, want 2", store.programUpserts)
	}
}
