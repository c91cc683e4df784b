package db

const schema = `
-- Performance and reliability settings
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;
PRAGMA temp_store = MEMORY;

-- Corpora: one row per harvested code, with the hierarchy snapshot and
-- stage-completion flags
CREATE TABLE IF NOT EXISTS corpora (
    corpus_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    hierarchy_url TEXT NOT NULL,
    hierarchy_yaml TEXT,
    stats_yaml TEXT,
    manifest_built BOOLEAN DEFAULT 0,
    extraction_complete BOOLEAN DEFAULT 0,
    reconciled BOOLEAN DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Manifest entries: flat ordered list of leaf sections per corpus
CREATE TABLE IF NOT EXISTS manifest_entries (
    corpus_id TEXT NOT NULL,
    section_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    fetch_address TEXT NOT NULL,
    ancestor_labels TEXT,
    PRIMARY KEY (corpus_id, section_id),
    FOREIGN KEY (corpus_id) REFERENCES corpora(corpus_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_manifest_position ON manifest_entries(corpus_id, position);

-- Section outcomes: durable per-section extraction state
CREATE TABLE IF NOT EXISTS section_outcomes (
    corpus_id TEXT NOT NULL,
    section_id TEXT NOT NULL,
    state TEXT NOT NULL,
    body TEXT,
    history TEXT,
    failure_reason TEXT,
    failure_class TEXT,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (corpus_id, section_id),
    FOREIGN KEY (corpus_id) REFERENCES corpora(corpus_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_outcomes_state ON section_outcomes(corpus_id, state);

-- Section versions: ordered versions for multi-version sections
CREATE TABLE IF NOT EXISTS section_versions (
    corpus_id TEXT NOT NULL,
    section_id TEXT NOT NULL,
    ordinal INTEGER NOT NULL,
    operative_date TEXT,
    status TEXT NOT NULL,
    content TEXT NOT NULL,
    history TEXT,
    PRIMARY KEY (corpus_id, section_id, ordinal),
    FOREIGN KEY (corpus_id) REFERENCES corpora(corpus_id) ON DELETE CASCADE
);

-- Fetch accesses: every fetch attempt tracked for operator forensics
CREATE TABLE IF NOT EXISTS fetch_accesses (
    access_id INTEGER PRIMARY KEY AUTOINCREMENT,
    corpus_id TEXT NOT NULL,
    section_id TEXT NOT NULL,
    accessed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    status_code INTEGER,
    error_class TEXT,
    success BOOLEAN NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_accesses_section ON fetch_accesses(corpus_id, section_id);
CREATE INDEX IF NOT EXISTS idx_accesses_time ON fetch_accesses(accessed_at);

-- Reconciliation attempts: append-only audit trail
CREATE TABLE IF NOT EXISTS reconciliation_attempts (
    attempt_id INTEGER PRIMARY KEY AUTOINCREMENT,
    corpus_id TEXT NOT NULL,
    run_id TEXT NOT NULL,
    attempt_number INTEGER NOT NULL,
    concurrency_used INTEGER NOT NULL,
    sections_retried TEXT NOT NULL,
    succeeded TEXT NOT NULL,
    failed TEXT NOT NULL,
    duration_ms INTEGER NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (corpus_id) REFERENCES corpora(corpus_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_attempts_corpus ON reconciliation_attempts(corpus_id, created_at);

-- Reconciliation reports: final gap list per corpus, overwritten per run
CREATE TABLE IF NOT EXISTS reconciliation_reports (
    corpus_id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    complete BOOLEAN NOT NULL,
    completion_rate REAL NOT NULL,
    remaining TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (corpus_id) REFERENCES corpora(corpus_id) ON DELETE CASCADE
);
`
