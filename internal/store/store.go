package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// maxInList bounds the number of bind variables in one IN (...) clause.
const maxInList = 500

// AggregateListOpts controls aggregate listing.
type AggregateListOpts struct {
	Timeframe string
	Community string // canonical name
	Limit     int
}

// Store is the persistence interface. Writes are either upserts keyed by a
// natural key or deletes keyed by a foreign-key set, so every call is safe to
// repeat.
type Store interface {
	EnsureCommunities(ctx context.Context, names []string) ([]Community, error)
	ListCommunities(ctx context.Context) ([]Community, error)

	CreateRun(ctx context.Context, run *RefreshRun) error
	UpdateRun(ctx context.Context, run *RefreshRun) error
	GetRun(ctx context.Context, id string) (*RefreshRun, error)
	ListRuns(ctx context.Context, limit int) ([]RefreshRun, error)

	UpsertPosts(ctx context.Context, posts []Post) error
	PostIDsByExternalID(ctx context.Context, externalIDs []string) (map[string]string, error)
	UpsertComments(ctx context.Context, comments []Comment) error
	CommentIDsByExternalID(ctx context.Context, externalIDs []string) (map[string]string, error)

	DeleteSentimentsByPost(ctx context.Context, postIDs []string) (int64, error)
	DeleteSentimentsByComment(ctx context.Context, commentIDs []string) (int64, error)
	InsertSentiments(ctx context.Context, scores []SentimentScore) error
	CountSentiments(ctx context.Context, subject SubjectType) (int, error)

	DeleteAggregates(ctx context.Context, timeframe string, communityIDs []string) (int64, error)
	UpsertAggregates(ctx context.Context, rows []DailyAggregate) error
	ListAggregates(ctx context.Context, opts AggregateListOpts) ([]AggregateRow, error)

	Close() error
}

// SQLStore implements Store on SQLite or PostgreSQL through sqlx.
type SQLStore struct {
	db *sqlx.DB
}

// Open connects with the named driver ("sqlite" or "postgres") and runs migrations.
func Open(driver, dsn string) (*SQLStore, error) {
	if driver == "sqlite" && !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// One writer avoids SQLITE_BUSY between a run's flush and the status reader.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLStore{db: db}, nil
}

// New opens a SQLite database at path.
func New(path string) (*SQLStore, error) {
	return Open("sqlite", path)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) EnsureCommunities(ctx context.Context, names []string) ([]Community, error) {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		q := tx.Rebind(`INSERT INTO communities (id, canonical_name) VALUES (?, ?)
			ON CONFLICT(canonical_name) DO NOTHING`)
		for _, name := range names {
			if _, err := tx.ExecContext(ctx, q, uuid.NewString(), name); err != nil {
				return fmt.Errorf("insert community %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.ListCommunities(ctx)
}

func (s *SQLStore) ListCommunities(ctx context.Context) ([]Community, error) {
	var out []Community
	if err := s.db.SelectContext(ctx, &out, "SELECT id, canonical_name FROM communities ORDER BY canonical_name"); err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	return out, nil
}

func (s *SQLStore) CreateRun(ctx context.Context, run *RefreshRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO refresh_runs (id, timeframe, keyword, status, triggered_at, started_at, finished_at,
			posts_processed, comments_processed, sentiments_processed, duration_ms, error)
		VALUES (:id, :timeframe, :keyword, :status, :triggered_at, :started_at, :finished_at,
			:posts_processed, :comments_processed, :sentiments_processed, :duration_ms, :error)
	`, run)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *SQLStore) UpdateRun(ctx context.Context, run *RefreshRun) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE refresh_runs SET status = :status, started_at = :started_at, finished_at = :finished_at,
			posts_processed = :posts_processed, comments_processed = :comments_processed,
			sentiments_processed = :sentiments_processed, duration_ms = :duration_ms, error = :error
		WHERE id = :id
	`, run)
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) GetRun(ctx context.Context, id string) (*RefreshRun, error) {
	var run RefreshRun
	err := s.db.GetContext(ctx, &run, s.db.Rebind("SELECT * FROM refresh_runs WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &run, nil
}

func (s *SQLStore) ListRuns(ctx context.Context, limit int) ([]RefreshRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []RefreshRun
	err := s.db.SelectContext(ctx, &runs,
		s.db.Rebind("SELECT * FROM refresh_runs ORDER BY triggered_at DESC LIMIT ?"), limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func (s *SQLStore) UpsertPosts(ctx context.Context, posts []Post) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for i := range posts {
			p := &posts[i]
			if p.ID == "" {
				p.ID = uuid.NewString()
			}
			if p.RawPayload == "" {
				p.RawPayload = "{}"
			}
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO posts (id, community_id, external_id, title, author, posted_at, score, comment_count, permalink, raw_payload)
				VALUES (:id, :community_id, :external_id, :title, :author, :posted_at, :score, :comment_count, :permalink, :raw_payload)
				ON CONFLICT(external_id) DO UPDATE SET
					community_id = excluded.community_id,
					title = excluded.title,
					author = excluded.author,
					posted_at = excluded.posted_at,
					score = excluded.score,
					comment_count = excluded.comment_count,
					permalink = excluded.permalink,
					raw_payload = excluded.raw_payload
			`, p)
			if err != nil {
				return fmt.Errorf("upsert post %s: %w", p.ExternalID, err)
			}
		}
		return nil
	})
}

func (s *SQLStore) PostIDsByExternalID(ctx context.Context, externalIDs []string) (map[string]string, error) {
	return s.idsByExternalID(ctx, "posts", externalIDs)
}

func (s *SQLStore) UpsertComments(ctx context.Context, comments []Comment) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for i := range comments {
			c := &comments[i]
			if c.ID == "" {
				c.ID = uuid.NewString()
			}
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO comments (id, post_id, external_id, author, posted_at, body)
				VALUES (:id, :post_id, :external_id, :author, :posted_at, :body)
				ON CONFLICT(external_id) DO UPDATE SET
					post_id = excluded.post_id,
					author = excluded.author,
					posted_at = excluded.posted_at,
					body = excluded.body
			`, c)
			if err != nil {
				return fmt.Errorf("upsert comment %s: %w", c.ExternalID, err)
			}
		}
		return nil
	})
}

func (s *SQLStore) CommentIDsByExternalID(ctx context.Context, externalIDs []string) (map[string]string, error) {
	return s.idsByExternalID(ctx, "comments", externalIDs)
}

func (s *SQLStore) idsByExternalID(ctx context.Context, table string, externalIDs []string) (map[string]string, error) {
	ids := make(map[string]string, len(externalIDs))
	for _, batch := range chunk(externalIDs, maxInList) {
		query, args, err := sqlx.In("SELECT id, external_id FROM "+table+" WHERE external_id IN (?)", batch)
		if err != nil {
			return nil, fmt.Errorf("build %s lookup: %w", table, err)
		}
		var rows []struct {
			ID         string `db:"id"`
			ExternalID string `db:"external_id"`
		}
		if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("lookup %s ids: %w", table, err)
		}
		for _, r := range rows {
			ids[r.ExternalID] = r.ID
		}
	}
	return ids, nil
}

func (s *SQLStore) DeleteSentimentsByPost(ctx context.Context, postIDs []string) (int64, error) {
	return s.deleteIn(ctx, "DELETE FROM sentiment_scores WHERE post_id IN (?)", nil, postIDs)
}

func (s *SQLStore) DeleteSentimentsByComment(ctx context.Context, commentIDs []string) (int64, error) {
	return s.deleteIn(ctx, "DELETE FROM sentiment_scores WHERE comment_id IN (?)", nil, commentIDs)
}

func (s *SQLStore) InsertSentiments(ctx context.Context, scores []SentimentScore) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for i := range scores {
			sc := &scores[i]
			if sc.ID == "" {
				sc.ID = uuid.NewString()
			}
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO sentiment_scores (id, subject_type, post_id, comment_id, compound, label, scored_at)
				VALUES (:id, :subject_type, :post_id, :comment_id, :compound, :label, :scored_at)
			`, sc)
			if err != nil {
				return fmt.Errorf("insert sentiment %s: %w", sc.ID, err)
			}
		}
		return nil
	})
}

func (s *SQLStore) CountSentiments(ctx context.Context, subject SubjectType) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind("SELECT COUNT(*) FROM sentiment_scores WHERE subject_type = ?"), subject)
	if err != nil {
		return 0, fmt.Errorf("count sentiments: %w", err)
	}
	return n, nil
}

func (s *SQLStore) DeleteAggregates(ctx context.Context, timeframe string, communityIDs []string) (int64, error) {
	return s.deleteIn(ctx, "DELETE FROM daily_aggregates WHERE timeframe = ? AND community_id IN (?)",
		[]any{timeframe}, communityIDs)
}

func (s *SQLStore) UpsertAggregates(ctx context.Context, rows []DailyAggregate) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for i := range rows {
			r := &rows[i]
			if r.ID == "" {
				r.ID = uuid.NewString()
			}
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO daily_aggregates (id, community_id, timeframe, bucket_start, positive, neutral, negative, activity_count)
				VALUES (:id, :community_id, :timeframe, :bucket_start, :positive, :neutral, :negative, :activity_count)
				ON CONFLICT(community_id, timeframe, bucket_start) DO UPDATE SET
					positive = excluded.positive,
					neutral = excluded.neutral,
					negative = excluded.negative,
					activity_count = excluded.activity_count
			`, r)
			if err != nil {
				return fmt.Errorf("upsert aggregate %s/%s: %w", r.CommunityID, r.BucketStart, err)
			}
		}
		return nil
	})
}

func (s *SQLStore) ListAggregates(ctx context.Context, opts AggregateListOpts) ([]AggregateRow, error) {
	query := `SELECT a.*, c.canonical_name FROM daily_aggregates a
		JOIN communities c ON c.id = a.community_id WHERE 1=1`
	var args []any

	if opts.Timeframe != "" {
		query += " AND a.timeframe = ?"
		args = append(args, opts.Timeframe)
	}
	if opts.Community != "" {
		query += " AND c.canonical_name = ?"
		args = append(args, opts.Community)
	}

	query += " ORDER BY a.bucket_start DESC, c.canonical_name"

	limit := opts.Limit
	if limit <= 0 {
		limit = 500
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var rows []AggregateRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	return rows, nil
}

// deleteIn runs query once per chunk of ids. The query's last bind variable
// must be the IN (?) list; lead holds any bind values that precede it.
func (s *SQLStore) deleteIn(ctx context.Context, query string, lead []any, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var total int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, batch := range chunk(ids, maxInList) {
			args := append(append([]any{}, lead...), batch)
			q, qargs, err := sqlx.In(query, args...)
			if err != nil {
				return fmt.Errorf("build delete: %w", err)
			}
			res, err := tx.ExecContext(ctx, tx.Rebind(q), qargs...)
			if err != nil {
				return fmt.Errorf("delete: %w", err)
			}
			n, _ := res.RowsAffected()
			total += n
		}
		return nil
	})
	return total, err
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
