// Package domain holds the entity types shared by every internal package.
// Types here carry no persistence or transport concerns; internal/store
// maps them to rows, internal/httpapi maps them to JSON.
package domain

import (
	"time"

	"varda/internal/binning"
)

// Role is a principal's permission grant, drawn from a fixed set.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleImporter   Role = "importer"
	RoleAnnotator  Role = "annotator"
	RoleTrader     Role = "trader"
	RoleGroupAdmin Role = "group-admin"
	RoleQuerier    Role = "querier"
)

// User is an opaque principal used only for authorization checks.
type User struct {
	ID    string
	Login string
	Roles []Role
}

// Token is a credential bound to a User, stored as a hash.
type Token struct {
	ID     string
	UserID string
	Hash   string
}

// Group is a named collection of samples, resolved by the group:<id>
// selection clause.
type Group struct {
	ID        string
	Owner     string
	Name      string
	SampleIDs []string
}

// FileType enumerates the accepted DataSource payload kinds.
type FileType string

const (
	FileTypeVCF FileType = "vcf"
	FileTypeBED FileType = "bed"
	FileTypeCSV FileType = "csv"
)

// DataSource is an immutable blob plus metadata. Digest is the content
// digest of the blob's bytes as stored (the compressed bytes when Gzipped)
// and is unique per Owner; Size is the byte length of that same blob.
type DataSource struct {
	ID        string
	Digest    string
	FileType  FileType
	Gzipped   bool
	Owner     string
	Size      int64
	CreatedAt time.Time
}

// Sample is a logical container for observations and coverage.
type Sample struct {
	ID               string
	Owner            string
	Name             string
	PoolSize         int
	CoverageProfile  bool
	Public           bool
	Active           bool
	Notes            string
	GroupIDs         []string
	ImportTaskID     string
}

// Variation binds a Sample to a DataSource recording an ingestion of
// observations.
type Variation struct {
	ID           string
	SampleID     string
	DataSourceID string
}

// Coverage binds a Sample to a DataSource recording an ingestion of covered
// regions.
type Coverage struct {
	ID           string
	SampleID     string
	DataSourceID string
}

// VariantClass classifies the kind of genomic event a Variant represents.
type VariantClass string

const (
	ClassSNV       VariantClass = "snv"
	ClassInsertion VariantClass = "insertion"
	ClassDeletion  VariantClass = "deletion"
	ClassMNV       VariantClass = "mnv"
)

// Variant is the canonical identity of a genomic event: the normalized
// (chrom, begin, end, observed) 4-tuple, plus the bin it was assigned under
// C1 so range queries never need to recompute it.
type Variant struct {
	ID       string
	Chrom    string
	Begin    int64
	End      int64
	Observed string
	Bin      binning.Bin
	Class    VariantClass
}

// Zygosity of one observation.
type Zygosity string

const (
	ZygosityHom     Zygosity = "hom"
	ZygosityHet     Zygosity = "het"
	ZygosityUnknown Zygosity = "unknown"
)

// Observation is a Variant occurring in a particular Variation.
type Observation struct {
	ID          string
	VariantID   string
	VariationID string
	Support     int
	Zygosity    Zygosity
}

// CoveredRegion records that a Coverage import reported sequencing coverage
// over [Begin, End] (one-based, inclusive) on Chrom.
type CoveredRegion struct {
	ID         string
	CoverageID string
	Chrom      string
	Begin      int64
	End        int64
	Bin        binning.Bin
}

// TaskKind enumerates the work a Task performs.
type TaskKind string

const (
	TaskImportVariation TaskKind = "import-variation"
	TaskImportCoverage  TaskKind = "import-coverage"
	TaskAnnotate        TaskKind = "annotate"
)

// TaskState is a node in the task lifecycle state machine.
type TaskState string

const (
	TaskWaiting TaskState = "waiting"
	TaskRunning TaskState = "running"
	TaskSuccess TaskState = "success"
	TaskFailure TaskState = "failure"
)

// Checkpoint is the opaque resumption state written periodically during a
// streaming import or annotation.
type Checkpoint struct {
	ByteOffset    int64
	RowsAccepted  int64
	RowsRejected  int64
}

// Task tracks one unit of asynchronous work.
type Task struct {
	ID              string
	Kind            TaskKind
	State           TaskState
	Progress        float64
	Error           string
	Target          string // sample id, annotation id, etc., depending on Kind
	DataSourceID    string // the data source an import task reads; empty for annotate
	CancelRequested bool
	Checkpoint      Checkpoint
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NamedQuery is one (slug, selection expression) pair submitted to the
// annotation pipeline.
type NamedQuery struct {
	Slug       string
	Expression string
}

// Annotation is a derived DataSource obtained by rewriting an input VCF/BED
// with per-variant frequency fields.
type Annotation struct {
	ID                  string
	OriginalDataSourceID string
	AnnotatedDataSourceID string
	Queries             []NamedQuery
	TaskID              string
}
