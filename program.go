package cratespro

// ProgramKind classifies a program as a library or an application.
//
// Classification follows the manifest: an explicit library target, or a
// src/lib.rs with no src/main.rs, means Library. Anything ambiguous is an
// Application.
type ProgramKind string

const (
	Library     ProgramKind = "library"
	Application ProgramKind = "application"
)

// Program is a logical package identity, independent of any version.
//
// Exactly one Program exists per (Namespace, Name) pair. The namespace is the
// "owner/repo" pair taken from the upstream repository URL.
type Program struct {
	// ID is a UUID assigned on first ingest and stable afterwards.
	ID string `json:"id"`
	// Name is the package name as declared in its manifest.
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Namespace   string `json:"namespace,omitempty"`
	// MaxVersion is the highest known release, maintained by the view layer.
	MaxVersion string      `json:"max_version,omitempty"`
	GithubURL  string      `json:"github_url,omitempty"`
	MegaURL    string      `json:"mega_url,omitempty"`
	DocURL     string      `json:"doc_url,omitempty"`
	Kind       ProgramKind `json:"program_type"`
	Downloads  int64       `json:"downloads,omitempty"`
	// InCratesio reports whether the upstream crawler found the package on
	// crates.io.
	InCratesio bool `json:"in_cratesio,omitempty"`
}

// HasType is the has_type edge from a Program to its type node. The type node
// shares the program's id, so both endpoints carry the same value.
type HasType struct {
	SrcID string `json:"src_id"`
	DstID string `json:"dst_id"`
}
