// Package store defines the persistence interfaces of the observation and
// coverage store. Interfaces here are satisfied by
// internal/store/sqlstore, which wires them against database/sql; callers
// in internal/frequency, internal/ingest, and internal/task depend only on
// these interfaces, the way gohan's services/ depend on a repository
// interface rather than a concrete Elasticsearch client.
package store

import (
	"context"

	"varda/internal/binning"
	"varda/internal/domain"
	"varda/internal/selection"
)

// VariantStore manages the Variant identity table.
type VariantStore interface {
	// GetOrCreate returns the existing Variant sharing v's
	// (chrom, begin, end, observed) identity, creating one if none exists.
	// The returned bool is true when an existing row was reused.
	GetOrCreate(ctx context.Context, v domain.Variant) (domain.Variant, bool, error)
	Get(ctx context.Context, id string) (domain.Variant, error)
	// OverlappingBins returns variants on chrom whose bin is one of bins and
	// whose interval overlaps [begin, end].
	OverlappingBins(ctx context.Context, chrom string, begin, end int64, bins []binning.Bin) ([]domain.Variant, error)
}

// ObservationStore records per-sample observations of a Variant and answers
// the frequency engine's "how many selected samples observed it" query.
type ObservationStore interface {
	// CreateVariation registers one ingestion of a sample against a
	// DataSource, returning the id observations are filed under.
	CreateVariation(ctx context.Context, v domain.Variation) (string, error)
	// FindVariation backs the duplicate-import check: ok is true when
	// sampleID already has a Variation against dataSourceID.
	FindVariation(ctx context.Context, sampleID, dataSourceID string) (id string, ok bool, err error)
	// HasVariation reports whether sampleID has any Variation at all,
	// the data-attached half of the sample activation guard.
	HasVariation(ctx context.Context, sampleID string) (bool, error)
	// SamplesWithVariation returns every sample that has dataSourceID
	// imported as its own Variation, so an annotation run on that data
	// source can exclude those samples from its own frequency queries.
	SamplesWithVariation(ctx context.Context, dataSourceID string) ([]string, error)
	Insert(ctx context.Context, obs domain.Observation) error
	// InsertBatch inserts every row of obs in one transaction, tagging each
	// row with checkpointOffset: the byte offset this batch advances its
	// Variation's scan to. If a prior commit already tagged this Variation
	// with an offset >= checkpointOffset, the whole batch is skipped rather
	// than re-merged, so a crash between a batch commit and the task's
	// checkpoint write can't double-count a replayed batch on resume.
	InsertBatch(ctx context.Context, checkpointOffset int64, obs []domain.Observation) error
	// CountForVariant returns the number of distinct samples (matching pred)
	// that observed variantID, and the sum of their Support values.
	CountForVariant(ctx context.Context, variantID string, pred selection.Predicate) (observed int, totalSupport int, err error)
}

// CoverageStore records sequenced regions per sample and answers the
// frequency engine's "how many selected samples were sequenced here" query.
type CoverageStore interface {
	// CreateRun registers one coverage (BED) ingestion of a sample against a
	// DataSource, returning the id covered regions are filed under.
	CreateRun(ctx context.Context, c domain.Coverage) (string, error)
	// FindRun backs the duplicate-import check, the coverage analogue of
	// ObservationStore.FindVariation.
	FindRun(ctx context.Context, sampleID, dataSourceID string) (id string, ok bool, err error)
	// HasCoverage reports whether sampleID has any Coverage run at all, the
	// coverage-profile half of the sample activation guard.
	HasCoverage(ctx context.Context, sampleID string) (bool, error)
	InsertRegion(ctx context.Context, region domain.CoveredRegion) error
	// InsertRegionsBatch inserts every row of regions in one transaction,
	// tagging them with checkpointOffset and skipping the whole batch if
	// this Coverage run was already tagged past it, the coverage analogue
	// of ObservationStore.InsertBatch's crash-resume guard.
	InsertRegionsBatch(ctx context.Context, checkpointOffset int64, regions []domain.CoveredRegion) error
	// CountCovering returns Σ pool_size over samples matching pred that
	// either (i) have a covered region spanning pos on chrom, or (ii) were
	// named by an explicit sample:<id> clause in pred (counted
	// unconditionally).
	CountCovering(ctx context.Context, chrom string, pos int64, bins []binning.Bin, pred selection.Predicate) (int, error)
}

// DataSourceStore manages the immutable blob-metadata rows ingestion and
// annotation attach their output to.
type DataSourceStore interface {
	// Create assigns ds an ID if it doesn't already have one and returns it.
	Create(ctx context.Context, ds domain.DataSource) (string, error)
	Get(ctx context.Context, id string) (domain.DataSource, error)
	// FindByDigest supports duplicate-upload rejection: ok is false when no
	// DataSource with this owner/digest pair exists.
	FindByDigest(ctx context.Context, owner, digest string) (ds domain.DataSource, ok bool, err error)
}

// AnnotationStore records an annotation run: the original/derived
// DataSource pair, the named queries it ran, and the Task that drove it.
type AnnotationStore interface {
	Create(ctx context.Context, a domain.Annotation) (string, error)
	Get(ctx context.Context, id string) (domain.Annotation, error)
	// SetAnnotatedDataSource records the rewritten output once the pipeline
	// has written it through the blob facade.
	SetAnnotatedDataSource(ctx context.Context, id, dataSourceID string) error
	// SetTask records which Task drives this annotation run.
	SetTask(ctx context.Context, id, taskID string) error
}

// SampleStore manages Sample rows and the active/inactive half of the
// sample state machine.
type SampleStore interface {
	Create(ctx context.Context, s domain.Sample) error
	Get(ctx context.Context, id string) (domain.Sample, error)
	List(ctx context.Context) ([]domain.Sample, error)
	SetActive(ctx context.Context, id string, active bool) error
	SetImportTask(ctx context.Context, id, taskID string) error
}

// GroupStore resolves group membership for the selection grammar's
// group:<id> clause.
type GroupStore interface {
	Create(ctx context.Context, g domain.Group) error
	Get(ctx context.Context, id string) (domain.Group, error)
	AddMember(ctx context.Context, groupID, sampleID string) error
}

// TaskStore manages Task rows and their waiting/running/terminal lifecycle.
type TaskStore interface {
	Create(ctx context.Context, t domain.Task) error
	Get(ctx context.Context, id string) (domain.Task, error)
	// ClaimNextWaiting atomically transitions one waiting task of kind to
	// running and returns it; ok is false when none is waiting.
	ClaimNextWaiting(ctx context.Context, kind domain.TaskKind) (task domain.Task, ok bool, err error)
	UpdateProgress(ctx context.Context, id string, progress float64, checkpoint domain.Checkpoint) error
	Finish(ctx context.Context, id string, state domain.TaskState, errMsg string) error
	RequestCancel(ctx context.Context, id string) error
	// Reschedule returns a finished or failed task to waiting, clearing its
	// progress and error.
	Reschedule(ctx context.Context, id string) error
	// AnyActiveForTarget reports whether any task naming target (a sample
	// id, for the import kinds) is waiting or running, the sample
	// activation guard.
	AnyActiveForTarget(ctx context.Context, target string) (bool, error)
}

// UserStore manages User rows, the opaque principal record the HTTP layer
// authorizes requests against.
type UserStore interface {
	Create(ctx context.Context, u domain.User) (string, error)
	Get(ctx context.Context, id string) (domain.User, error)
	// FindByTokenHash resolves the User owning the token hashing to hash; ok
	// is false when no token matches, the signal a caller treats as an
	// unauthenticated request.
	FindByTokenHash(ctx context.Context, hash string) (domain.User, bool, error)
}

// TokenStore manages credential rows bound to a User.
type TokenStore interface {
	Create(ctx context.Context, t domain.Token) (string, error)
	Revoke(ctx context.Context, id string) error
}

// Locker serializes concurrent access to a single sample's rows so that
// ingestion and state-machine transitions are free of races: no two tasks
// may concurrently mutate one sample's rows.
type Locker interface {
	WithSampleLock(ctx context.Context, sampleID string, fn func(context.Context) error) error
}

// Store bundles every sub-store the rest of the engine depends on.
type Store interface {
	Variants() VariantStore
	Observations() ObservationStore
	Coverage() CoverageStore
	DataSources() DataSourceStore
	Annotations() AnnotationStore
	Samples() SampleStore
	Groups() GroupStore
	Tasks() TaskStore
	Users() UserStore
	Tokens() TokenStore
	Locker() Locker
}
