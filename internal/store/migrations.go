package store

// schema is portable between SQLite and PostgreSQL: surrogate keys are
// application-generated UUID text and day buckets are ISO dates.
const schema = `
CREATE TABLE IF NOT EXISTS communities (
    id             TEXT PRIMARY KEY,
    canonical_name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS refresh_runs (
    id                   TEXT PRIMARY KEY,
    timeframe            TEXT NOT NULL,
    keyword              TEXT,
    status               TEXT NOT NULL,
    triggered_at         TIMESTAMP NOT NULL,
    started_at           TIMESTAMP,
    finished_at          TIMESTAMP,
    posts_processed      INTEGER NOT NULL DEFAULT 0,
    comments_processed   INTEGER NOT NULL DEFAULT 0,
    sentiments_processed INTEGER NOT NULL DEFAULT 0,
    duration_ms          BIGINT NOT NULL DEFAULT 0,
    error                TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_triggered_at ON refresh_runs(triggered_at);

CREATE TABLE IF NOT EXISTS posts (
    id            TEXT PRIMARY KEY,
    community_id  TEXT NOT NULL REFERENCES communities(id),
    external_id   TEXT NOT NULL UNIQUE,
    title         TEXT NOT NULL,
    author        TEXT,
    posted_at     TIMESTAMP NOT NULL,
    score         INTEGER,
    comment_count INTEGER,
    permalink     TEXT,
    raw_payload   TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_posts_community ON posts(community_id);
CREATE INDEX IF NOT EXISTS idx_posts_posted_at ON posts(posted_at);

CREATE TABLE IF NOT EXISTS comments (
    id          TEXT PRIMARY KEY,
    post_id     TEXT NOT NULL REFERENCES posts(id),
    external_id TEXT NOT NULL UNIQUE,
    author      TEXT,
    posted_at   TIMESTAMP NOT NULL,
    body        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(post_id);

CREATE TABLE IF NOT EXISTS sentiment_scores (
    id           TEXT PRIMARY KEY,
    subject_type TEXT NOT NULL CHECK (subject_type IN ('post', 'comment')),
    post_id      TEXT REFERENCES posts(id),
    comment_id   TEXT REFERENCES comments(id),
    compound     DOUBLE PRECISION NOT NULL,
    label        TEXT NOT NULL CHECK (label IN ('positive', 'neutral', 'negative')),
    scored_at    TIMESTAMP NOT NULL,
    CHECK (
        (subject_type = 'post' AND post_id IS NOT NULL AND comment_id IS NULL) OR
        (subject_type = 'comment' AND comment_id IS NOT NULL AND post_id IS NULL)
    )
);

CREATE INDEX IF NOT EXISTS idx_sentiment_post ON sentiment_scores(post_id);
CREATE INDEX IF NOT EXISTS idx_sentiment_comment ON sentiment_scores(comment_id);

CREATE TABLE IF NOT EXISTS daily_aggregates (
    id             TEXT PRIMARY KEY,
    community_id   TEXT NOT NULL REFERENCES communities(id),
    timeframe      TEXT NOT NULL,
    bucket_start   TEXT NOT NULL,
    positive       INTEGER NOT NULL DEFAULT 0,
    neutral        INTEGER NOT NULL DEFAULT 0,
    negative       INTEGER NOT NULL DEFAULT 0,
    activity_count INTEGER NOT NULL DEFAULT 0,
    UNIQUE (community_id, timeframe, bucket_start)
);

CREATE INDEX IF NOT EXISTS idx_aggregates_timeframe ON daily_aggregates(timeframe, bucket_start);
`
