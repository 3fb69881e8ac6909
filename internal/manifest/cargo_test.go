package manifest

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	cratespro "github.com/crates-pro/crates-pro"
)

func TestParseManifest(t *testing.T) {
	const doc = `
[package]
name = "foo"
version = "0.1.0"
description = "a test crate"
license = "MIT"

[dependencies]
bar = "1"
baz = { version = "0.9", features = ["full"] }
local-only = { path = "../local-only" }
`
	m, err := parseManifest(doc)
	if err != nil {
		t.Fatal(err)
	}
	if m.Name != "foo" || m.Version != "0.1.0" || m.License != "MIT" {
		t.Errorf("bad package fields: %+v", m)
	}
	want := []cratespro.Dependency{
		{Name: "bar", Version: "1"},
		{Name: "baz", Version: "0.9"},
	}
	if got := m.Deps; !cmp.Equal(got, want) {
		t.Error(cmp.Diff(got, want))
	}
}

func TestParseManifestWorkspaceOnly(t *testing.T) {
	const doc = `
[workspace]
members = ["crates/*"]
`
	_, err := parseManifest(doc)
	if !errors.Is(err, errWorkspaceOnly) {
		t.Errorf("got: %v, want errWorkspaceOnly", err)
	}
}

func TestParseManifestInvalid(t *testing.T) {
	if _, err := parseManifest("[package\nname="); err == nil {
		t.Error("expected a parse error")
	}
}

func TestClassify(t *testing.T) {
	tt := []struct {
		Name   string
		Doc    string
		LibRS  bool
		MainRS bool
		Want   cratespro.ProgramKind
	}{
		{
			Name: "ExplicitLib",
			Doc:  "[package]\nname = \"x\"\n[lib]\nname = \"x\"\n",
			Want: cratespro.Library,
		},
		{
			Name: "ExplicitBin",
			Doc:  "[package]\nname = \"x\"\n[[bin]]\nname = \"x\"\n",
			Want: cratespro.Application,
		},
		{
			Name: "LibAndBinTargets",
			Doc:  "[package]\nname = \"x\"\n[lib]\nname = \"x\"\n[[bin]]\nname = \"y\"\n",
			Want: cratespro.Application,
		},
		{
			Name:  "LibRSOnly",
			Doc:   "[package]\nname = \"x\"\n",
			LibRS: true,
			Want:  cratespro.Library,
		},
		{
			Name:   "BothSourceFiles",
			Doc:    "[package]\nname = \"x\"\n",
			LibRS:  true,
			MainRS: true,
			Want:   cratespro.Application,
		},
		{
			Name: "NoSignal",
			Doc:  "[package]\nname = \"x\"\n",
			Want: cratespro.Application,
		},
	}
	for _, tc := range tt {
		t.Run(tc.Name, func(t *testing.T) {
			m, err := parseManifest(tc.Doc)
			if err != nil {
				t.Fatal(err)
			}
			if got := classify(m, tc.LibRS, tc.MainRS); got != tc.Want {
				t.Errorf("got: %v, want: %v", got, tc.Want)
			}
		})
	}
}
