// Package catalog tracks stored analyses in a SQLite database.
package catalog

// CreateAnalysesTableSQL creates the analyses table. Timestamps are unix
// nanoseconds in UTC.
const CreateAnalysesTableSQL = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    source_file TEXT NOT NULL,
    record_count INTEGER NOT NULL,
    classified_count INTEGER NOT NULL,
    generated_at INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    lsa_key TEXT NOT NULL,
    funnel_key TEXT NOT NULL,
    overview_key TEXT NOT NULL,
    size_bytes INTEGER NOT NULL DEFAULT 0
)`

// CreateAnalysesIndexesSQL creates indexes for listing.
var CreateAnalysesIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_analyses_source ON analyses(source_file)`,
}

// AllSchemaSQL returns all SQL statements needed to initialize the catalog.
func AllSchemaSQL() []string {
	statements := []string{CreateAnalysesTableSQL}
	return append(statements, CreateAnalysesIndexesSQL...)
}
