package runstore

const schema = `
CREATE TABLE IF NOT EXISTS batches (
    id TEXT PRIMARY KEY,
    change_id TEXT,
    source TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_batches_started_at ON batches(started_at);

CREATE TABLE IF NOT EXISTS results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    batch_id TEXT NOT NULL REFERENCES batches(id),
    repository TEXT NOT NULL,
    stage TEXT,
    outcome TEXT NOT NULL,
    error TEXT,
    branch TEXT,
    workspace TEXT,
    pr_url TEXT,
    checks TEXT,
    started_at TIMESTAMP,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_results_batch_id ON results(batch_id);

CREATE TABLE IF NOT EXISTS invocations (
    id TEXT PRIMARY KEY,
    batch_id TEXT,
    repository TEXT,
    role TEXT NOT NULL,
    backend TEXT NOT NULL,
    workspace TEXT,
    secret_names TEXT,
    succeeded BOOLEAN DEFAULT FALSE,
    started_at TIMESTAMP,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_invocations_batch_id ON invocations(batch_id);
`
