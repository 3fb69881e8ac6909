package cratespro

import "strings"

// VersionKeySeparator joins a package name and a version literal into the
// canonical name-and-version key.
const VersionKeySeparator = "/"

// VersionKey returns the canonical key for a (name, version) pair.
func VersionKey(name, version string) string {
	return name + VersionKeySeparator + version
}

// SplitVersionKey is the inverse of VersionKey. Version literals may
// themselves contain the separator only in degenerate cases, so the split is
// on the first occurrence, matching how keys are constructed.
func SplitVersionKey(key string) (name, version string, ok bool) {
	name, version, ok = strings.Cut(key, VersionKeySeparator)
	return name, version, ok
}

// Version is a specific release of a Program.
//
// The Key field is always Name + "/" + Version; stores enforce one Version
// node per distinct key. A Version created as the target of a depends_on edge
// may not yet have an owning Program.
type Version struct {
	// Key is the name-and-version primary key.
	Key string `json:"name_and_version"`
	// ProgramID is the owning program's id, empty for dangling dependency
	// targets.
	ProgramID string `json:"id,omitempty"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	// Documentation is only populated for library versions.
	Documentation string      `json:"documentation,omitempty"`
	Kind          ProgramKind `json:"-"`
}

// NewVersion builds a Version with a consistent key.
func NewVersion(programID, name, version string, kind ProgramKind) Version {
	return Version{
		Key:       VersionKey(name, version),
		ProgramID: programID,
		Name:      name,
		Version:   version,
		Kind:      kind,
	}
}

// HasVersion is the has_version edge from a type node to a release.
type HasVersion struct {
	SrcID string `json:"src_id"`
	DstID string `json:"dst_id"`
}

// HasDepVersion is the legacy self-bridge edge on a Version node. Both
// endpoints are the version key. It is redundant with Version identity but
// kept for interop with queries written against the original graph schema.
type HasDepVersion struct {
	SrcID string `json:"src_id"`
	DstID string `json:"dst_id"`
}

// DependsOn is a directed dependency edge between two version keys. The
// destination carries the declared range literal, not a resolved version.
type DependsOn struct {
	SrcID string `json:"src_id"`
	DstID string `json:"dst_id"`
}

// Dependency is one declared dependency entry from a manifest.
type Dependency struct {
	Name string `json:"name"`
	// Version is the literal from the manifest, e.g. "1" or "^0.9".
	Version string `json:"version"`
}

// DependencyRecord is the extraction result for one package at one tagged
// version: the package, its version literal, and its declared dependencies.
type DependencyRecord struct {
	CrateName    string       `json:"crate_name"`
	Version      string       `json:"version"`
	Dependencies []Dependency `json:"dependencies"`
}

// Key returns the record's name-and-version key.
func (r *DependencyRecord) Key() string {
	return VersionKey(r.CrateName, r.Version)
}
