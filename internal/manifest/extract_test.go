package manifest

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/go-cmp/cmp"
	"github.com/quay/zlog"

	cratespro "github.com/crates-pro/crates-pro"
)

var sig = &object.Signature{Name: "test", Email: "test@localhost", When: time.Unix(1700000000, 0)}

// fixtureRepo builds a repository with one crate, two tagged versions (one
// lightweight, one annotated), and a lib.rs.
func fixtureRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}

	write := func(name, content string) {
		t.Helper()
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := wt.Add(name); err != nil {
			t.Fatal(err)
		}
	}

	write("Cargo.toml", "[package]\nname = \"foo\"\nversion = \"0.1.0\"\ndescription = \"fixture\"\nlicense = \"MIT\"\n\n[dependencies]\nbar = \"1\"\n")
	write("src/lib.rs", "pub fn nothing() {}\n")
	h1, err := wt.Commit("v0.1.0", &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateTag("v0.1.0", h1, nil); err != nil {
		t.Fatal(err)
	}

	write("Cargo.toml", "[package]\nname = \"foo\"\nversion = \"0.2.0\"\ndescription = \"fixture\"\nlicense = \"MIT\"\n\n[dependencies]\nbar = \"1\"\nbaz = { version = \"0.9\" }\n")
	h2, err := wt.Commit("v0.2.0", &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateTag("v0.2.0", h2, &git.CreateTagOptions{
		Tagger:  sig,
		Message: "release 0.2.0",
	}); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestExtractPrograms(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	dir := fixtureRepo(t)

	got, err := ExtractPrograms(ctx, dir, "alice/foo", "https://example.com/alice/foo.git")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d programs, want 1", len(got))
	}
	p := got[0]
	if p.Program.Name != "foo" || p.Program.Namespace != "alice/foo" || p.Program.Kind != cratespro.Library {
		t.Errorf("unexpected program: %+v", p.Program)
	}
	if p.License != "MIT" {
		t.Errorf("got license %q, want MIT", p.License)
	}
	if p.Program.ID == "" {
		t.Error("program id not assigned")
	}
}

func TestExtractVersions(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	dir := fixtureRepo(t)

	got, err := ExtractVersions(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	sort.Slice(got, func(i, j int) bool { return got[i].Version < got[j].Version })
	want := []cratespro.DependencyRecord{
		{
			CrateName:    "foo",
			Version:      "0.1.0",
			Dependencies: []cratespro.Dependency{{Name: "bar", Version: "1"}},
		},
		{
			CrateName: "foo",
			Version:   "0.2.0",
			Dependencies: []cratespro.Dependency{
				{Name: "bar", Version: "1"},
				{Name: "baz", Version: "0.9"},
			},
		},
	}
	if !cmp.Equal(got, want) {
		t.Error(cmp.Diff(got, want))
	}
}

// Re-running extraction over an unchanged tree must yield the same multiset.
func TestExtractVersionsStable(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	dir := fixtureRepo(t)

	first, err := ExtractVersions(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	second, err := ExtractVersions(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	sort.Slice(first, func(i, j int) bool { return first[i].Version < first[j].Version })
	sort.Slice(second, func(i, j int) bool { return second[i].Version < second[j].Version })
	if !cmp.Equal(first, second) {
		t.Error(cmp.Diff(first, second))
	}
}
