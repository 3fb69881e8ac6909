package graph

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	cratespro "github.com/crates-pro/crates-pro"
)

func readCSV(t *testing.T, dir, name string) [][]string {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestSnapshotWriteCSV(t *testing.T) {
	snap := NewSnapshot()
	snap.AddProgram(&cratespro.Program{
		ID:        "id-foo",
		Name:      "foo",
		Namespace: "alice/foo",
		Kind:      cratespro.Library,
	})
	v := cratespro.NewVersion("id-foo", "foo", "0.1.0", cratespro.Library)
	snap.AddVersion(&v, []cratespro.Dependency{{Name: "bar", Version: "1"}})

	dir := t.TempDir()
	if err := snap.WriteCSV(dir); err != nil {
		t.Fatal(err)
	}

	// Every file of the export layout must exist, populated or not.
	names := []string{
		"program.csv", "library.csv", "application.csv",
		"library_version.csv", "application_version.csv", "version.csv",
		"has_lib_type.csv", "has_app_type.csv",
		"lib_has_version.csv", "app_has_version.csv",
		"lib_has_dep_version.csv", "app_has_dep_version.csv",
		"depends_on.csv",
	}
	for _, name := range names {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing export file %s: %v", name, err)
		}
	}

	if rows := readCSV(t, dir, "depends_on.csv"); !cmp.Equal(rows, [][]string{{"foo/0.1.0", "bar/1"}}) {
		t.Errorf("depends_on rows: %v", rows)
	}
	if rows := readCSV(t, dir, "has_lib_type.csv"); !cmp.Equal(rows, [][]string{{"id-foo", "id-foo"}}) {
		t.Errorf("has_lib_type rows: %v", rows)
	}
	if rows := readCSV(t, dir, "lib_has_version.csv"); !cmp.Equal(rows, [][]string{{"id-foo", "foo/0.1.0"}}) {
		t.Errorf("lib_has_version rows: %v", rows)
	}
	if rows := readCSV(t, dir, "version.csv"); !cmp.Equal(rows, [][]string{{"foo/0.1.0"}}) {
		t.Errorf("version rows: %v", rows)
	}
	if rows := readCSV(t, dir, "application.csv"); len(rows) != 0 {
		t.Errorf("application.csv should be empty, got %v", rows)
	}
}

// Rewriting the snapshot twice produces identical files: the export is a
// pure function of the accumulated state.
func TestSnapshotRewriteStable(t *testing.T) {
	snap := NewSnapshot()
	snap.AddProgram(&cratespro.Program{ID: "p", Name: "x", Kind: cratespro.Application})

	a, b := t.TempDir(), t.TempDir()
	if err := snap.WriteCSV(a); err != nil {
		t.Fatal(err)
	}
	if err := snap.WriteCSV(b); err != nil {
		t.Fatal(err)
	}
	fa := readCSV(t, a, "application.csv")
	fb := readCSV(t, b, "application.csv")
	if !cmp.Equal(fa, fb) {
		t.Error(cmp.Diff(fa, fb))
	}
}
