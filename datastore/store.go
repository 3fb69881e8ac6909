// Package datastore defines the relational capabilities backing the mirror
// and the derived-view cache. Implementations are in the postgres
// subpackage.
package datastore

import (
	"context"
	"time"

	cratespro "github.com/crates-pro/crates-pro"
)

// ErrNotFound is returned by point lookups when no row exists.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "datastore: not found" }

// VersionRow is one release as mirrored relationally.
type VersionRow struct {
	Key       string
	ProgramID string
	Name      string
	Version   string
	Kind      cratespro.ProgramKind
	CreatedAt time.Time
}

// MirrorStore mirrors the program/version/dependency facts of the graph.
type MirrorStore interface {
	// UpsertProgram writes the program row and its license row. Conflicts on
	// the natural keys are no-ops.
	UpsertProgram(ctx context.Context, p *cratespro.Program, license string) error
	// UpsertVersion writes the version row and its dependency rows.
	UpsertVersion(ctx context.Context, v *cratespro.Version, deps []cratespro.Dependency) error
	// ProgramByName returns the mirrored program for a crate name.
	ProgramByName(ctx context.Context, namespace, name string) (*cratespro.Program, error)
	// AllPrograms lists every mirrored program.
	AllPrograms(ctx context.Context) ([]*cratespro.Program, error)
	// VersionsOf lists all mirrored releases of a crate.
	VersionsOf(ctx context.Context, name string) ([]VersionRow, error)
	// LicenseFor returns the recorded license for a crate, or "".
	LicenseFor(ctx context.Context, namespace, name string) (string, error)
	// MarkRepoInvalid flags a program whose upstream repository is gone or
	// requires credentials.
	MarkRepoInvalid(ctx context.Context, namespace, name string) error
	// UpsertSyncStatus mirrors one consumed repo sync event.
	UpsertSyncStatus(ctx context.Context, ev *cratespro.RepoSyncEvent) error
}

// VulnerabilityStore holds advisories.
type VulnerabilityStore interface {
	UpsertAdvisories(ctx context.Context, advisories []cratespro.Advisory) error
	// AdvisoriesForCrate returns every advisory filed against a crate name.
	AdvisoriesForCrate(ctx context.Context, name string) ([]cratespro.Advisory, error)
	AllAdvisories(ctx context.Context) ([]cratespro.Advisory, error)
}

// ViewStore persists the derived views. Get methods return ErrNotFound on
// miss; Put is a primary-key upsert where the last writer wins, which is
// sound because view inputs are monotone between writes.
type ViewStore interface {
	GetCrateInfo(ctx context.Context, namespace, name, version string) (*cratespro.CrateInfo, error)
	PutCrateInfo(ctx context.Context, info *cratespro.CrateInfo) error

	GetVersionPage(ctx context.Context, namespace, name string) (*cratespro.VersionPage, error)
	PutVersionPage(ctx context.Context, page *cratespro.VersionPage) error

	GetDependencyList(ctx context.Context, namespace, name, version string) (*cratespro.DependencyList, error)
	PutDependencyList(ctx context.Context, namespace, name, version string, list *cratespro.DependencyList) error

	GetDependentList(ctx context.Context, namespace, name, version string) (*cratespro.DependentList, error)
	PutDependentList(ctx context.Context, namespace, name, version string, list *cratespro.DependentList) error

	GetDependencyTree(ctx context.Context, namespace, name, version string) (*cratespro.DependencyTreeNode, error)
	PutDependencyTree(ctx context.Context, namespace, name, version string, tree *cratespro.DependencyTreeNode) error
}

// UploadStore records user submissions for later ingest.
type UploadStore interface {
	RecordUploadedCrate(ctx context.Context, email, filename string, uploadedAt time.Time) error
	RecordUploadedURL(ctx context.Context, email, url string, uploadedAt time.Time) error
	UploadsByEmail(ctx context.Context, email string) ([]string, error)
	UpsertCrateUser(ctx context.Context, email, name string) error
}

// AnalysisStore receives external scanner output.
type AnalysisStore interface {
	// StoreResult writes one tool's blob for a scanned version.
	StoreResult(ctx context.Context, res *cratespro.ScanResult) error
	// MarkScanFailed records the sentinel row that suppresses re-dispatch.
	MarkScanFailed(ctx context.Context, id, tool string) error
	// HasResult reports whether a result or failure sentinel exists.
	HasResult(ctx context.Context, id, tool string) (bool, error)
}

// Store is the combined relational capability.
type Store interface {
	MirrorStore
	VulnerabilityStore
	ViewStore
	UploadStore
	AnalysisStore

	Close()
}
