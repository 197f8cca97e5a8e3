package storage

// Timestamps are stored as unix seconds; zero means unknown.
const schema = `
CREATE TABLE IF NOT EXISTS businesses (
    id        TEXT PRIMARY KEY,
    name      TEXT NOT NULL,
    place_id  TEXT NOT NULL DEFAULT '',
    page_url  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS reviews (
    fingerprint TEXT PRIMARY KEY,
    business_id TEXT NOT NULL REFERENCES businesses(id),
    author      TEXT NOT NULL,
    rating      INTEGER NOT NULL,
    text        TEXT NOT NULL,
    posted_at   INTEGER NOT NULL,
    sentiment   TEXT NOT NULL,
    score       REAL NOT NULL,
    first_seen  INTEGER NOT NULL,
    last_seen   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reviews_business_posted
    ON reviews(business_id, posted_at);

CREATE TABLE IF NOT EXISTS ingestion_runs (
    id              TEXT PRIMARY KEY,
    business_id     TEXT NOT NULL,
    source          TEXT NOT NULL DEFAULT '',
    started_at      INTEGER NOT NULL,
    finished_at     INTEGER NOT NULL,
    outcome         TEXT NOT NULL,
    fetched         INTEGER NOT NULL DEFAULT 0,
    new_count       INTEGER NOT NULL DEFAULT 0,
    duplicate_count INTEGER NOT NULL DEFAULT 0,
    failed_count    INTEGER NOT NULL DEFAULT 0,
    error           TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_business_started
    ON ingestion_runs(business_id, started_at);
`
