package store

import (
	"database/sql"
	"fmt"
)

// CreateSchema creates every table the engine needs, using IF NOT EXISTS so
// it is safe to call on every startup, the way quickly-pick's
// db.CreateSchema does. Unlike that schema, timestamps are stored as
// RFC3339 TEXT and ids as app-generated TEXT (uuid.New().String()) rather
// than relying on NOW()/SERIAL, since this schema must run unmodified
// against both the sqlite and Postgres adapters.
func CreateSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    login TEXT NOT NULL UNIQUE,
    roles TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tokens (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    hash TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS groups (
    id TEXT PRIMARY KEY,
    owner TEXT NOT NULL,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sample_groups (
    sample_id TEXT NOT NULL,
    group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
    PRIMARY KEY (sample_id, group_id)
);

CREATE INDEX IF NOT EXISTS idx_sample_groups_group ON sample_groups(group_id);

CREATE TABLE IF NOT EXISTS data_sources (
    id TEXT PRIMARY KEY,
    digest TEXT NOT NULL UNIQUE,
    file_type TEXT NOT NULL,
    gzipped INTEGER NOT NULL DEFAULT 0,
    owner TEXT NOT NULL,
    size INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS samples (
    id TEXT PRIMARY KEY,
    owner TEXT NOT NULL,
    name TEXT NOT NULL,
    pool_size INTEGER NOT NULL DEFAULT 1,
    coverage_profile INTEGER NOT NULL DEFAULT 0,
    public INTEGER NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 0,
    notes TEXT NOT NULL DEFAULT '',
    import_task_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_samples_active ON samples(active);

CREATE TABLE IF NOT EXISTS variations (
    id TEXT PRIMARY KEY,
    sample_id TEXT NOT NULL REFERENCES samples(id) ON DELETE CASCADE,
    data_source_id TEXT NOT NULL REFERENCES data_sources(id)
);

CREATE TABLE IF NOT EXISTS coverages (
    id TEXT PRIMARY KEY,
    sample_id TEXT NOT NULL REFERENCES samples(id) ON DELETE CASCADE,
    data_source_id TEXT NOT NULL REFERENCES data_sources(id)
);

CREATE TABLE IF NOT EXISTS variants (
    id TEXT PRIMARY KEY,
    chrom TEXT NOT NULL,
    begin_pos INTEGER NOT NULL,
    end_pos INTEGER NOT NULL,
    observed TEXT NOT NULL,
    bin INTEGER NOT NULL,
    class TEXT NOT NULL,
    UNIQUE (chrom, begin_pos, end_pos, observed)
);

CREATE INDEX IF NOT EXISTS idx_variants_bin ON variants(chrom, bin);

CREATE TABLE IF NOT EXISTS observations (
    id TEXT PRIMARY KEY,
    variant_id TEXT NOT NULL REFERENCES variants(id) ON DELETE CASCADE,
    variation_id TEXT NOT NULL REFERENCES variations(id) ON DELETE CASCADE,
    sample_id TEXT NOT NULL REFERENCES samples(id) ON DELETE CASCADE,
    support INTEGER NOT NULL DEFAULT 1,
    zygosity TEXT NOT NULL DEFAULT 'unknown',
    checkpoint_offset INTEGER NOT NULL DEFAULT 0,
    UNIQUE (variant_id, sample_id)
);

CREATE INDEX IF NOT EXISTS idx_observations_variant ON observations(variant_id);
CREATE INDEX IF NOT EXISTS idx_observations_sample ON observations(sample_id);

CREATE TABLE IF NOT EXISTS covered_regions (
    id TEXT PRIMARY KEY,
    coverage_id TEXT NOT NULL REFERENCES coverages(id) ON DELETE CASCADE,
    sample_id TEXT NOT NULL REFERENCES samples(id) ON DELETE CASCADE,
    chrom TEXT NOT NULL,
    begin_pos INTEGER NOT NULL,
    end_pos INTEGER NOT NULL,
    bin INTEGER NOT NULL,
    checkpoint_offset INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_covered_regions_bin ON covered_regions(chrom, bin);
CREATE INDEX IF NOT EXISTS idx_covered_regions_sample ON covered_regions(sample_id);

CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'waiting',
    progress REAL NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    target TEXT NOT NULL DEFAULT '',
    data_source_id TEXT NOT NULL DEFAULT '',
    cancel_requested INTEGER NOT NULL DEFAULT 0,
    checkpoint_byte_offset INTEGER NOT NULL DEFAULT 0,
    checkpoint_rows_accepted INTEGER NOT NULL DEFAULT 0,
    checkpoint_rows_rejected INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_state_kind ON tasks(state, kind);

CREATE TABLE IF NOT EXISTS annotations (
    id TEXT PRIMARY KEY,
    original_data_source_id TEXT NOT NULL REFERENCES data_sources(id),
    annotated_data_source_id TEXT NOT NULL DEFAULT '',
    queries TEXT NOT NULL DEFAULT '[]',
    task_id TEXT NOT NULL DEFAULT ''
);
`
