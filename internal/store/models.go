package store

import "time"

// Community is a configured subreddit. The pipeline never mutates it.
type Community struct {
	ID            string `db:"id" json:"id"`
	CanonicalName string `db:"canonical_name" json:"canonical_name"`
}

// RunStatus is the lifecycle state of a refresh run.
type RunStatus string

const (
	RunQueued                RunStatus = "queued"
	RunProcessing            RunStatus = "processing"
	RunCompleted             RunStatus = "completed"
	RunCompletedWithWarnings RunStatus = "completed_with_warnings"
	RunFailed                RunStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunCompletedWithWarnings || s == RunFailed
}

// RefreshRun records one pipeline execution.
type RefreshRun struct {
	ID                  string     `db:"id" json:"id"`
	Timeframe           string     `db:"timeframe" json:"timeframe"`
	Keyword             *string    `db:"keyword" json:"keyword,omitempty"`
	Status              RunStatus  `db:"status" json:"status"`
	TriggeredAt         time.Time  `db:"triggered_at" json:"triggered_at"`
	StartedAt           *time.Time `db:"started_at" json:"started_at,omitempty"`
	FinishedAt          *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	PostsProcessed      int        `db:"posts_processed" json:"posts_processed"`
	CommentsProcessed   int        `db:"comments_processed" json:"comments_processed"`
	SentimentsProcessed int        `db:"sentiments_processed" json:"sentiments_processed"`
	DurationMS          int64      `db:"duration_ms" json:"duration_ms"`
	Error               *string    `db:"error" json:"error,omitempty"`
}

// Post is an upstream submission, unique by ExternalID.
type Post struct {
	ID           string    `db:"id" json:"id"`
	CommunityID  string    `db:"community_id" json:"community_id"`
	ExternalID   string    `db:"external_id" json:"external_id"`
	Title        string    `db:"title" json:"title"`
	Author       *string   `db:"author" json:"author,omitempty"`
	PostedAt     time.Time `db:"posted_at" json:"posted_at"`
	Score        *int      `db:"score" json:"score,omitempty"`
	CommentCount *int      `db:"comment_count" json:"comment_count,omitempty"`
	Permalink    *string   `db:"permalink" json:"permalink,omitempty"`
	RawPayload   string    `db:"raw_payload" json:"-"`
}

// Comment is a top-level comment, unique by ExternalID.
type Comment struct {
	ID         string    `db:"id" json:"id"`
	PostID     string    `db:"post_id" json:"post_id"`
	ExternalID string    `db:"external_id" json:"external_id"`
	Author     *string   `db:"author" json:"author,omitempty"`
	PostedAt   time.Time `db:"posted_at" json:"posted_at"`
	Body       string    `db:"body" json:"body"`
}

// SubjectType tells which of PostID/CommentID a sentiment row refers to.
type SubjectType string

const (
	SubjectPost    SubjectType = "post"
	SubjectComment SubjectType = "comment"
)

// SentimentScore holds one scored subject. Exactly one of PostID and
// CommentID is set, matching SubjectType.
type SentimentScore struct {
	ID          string      `db:"id" json:"id"`
	SubjectType SubjectType `db:"subject_type" json:"subject_type"`
	PostID      *string     `db:"post_id" json:"post_id,omitempty"`
	CommentID   *string     `db:"comment_id" json:"comment_id,omitempty"`
	Compound    float64     `db:"compound" json:"compound"`
	Label       string      `db:"label" json:"label"`
	ScoredAt    time.Time   `db:"scored_at" json:"scored_at"`
}

// DailyAggregate counts labelled activity for one community, timeframe and
// UTC day. BucketStart is formatted as 2006-01-02.
type DailyAggregate struct {
	ID            string `db:"id" json:"id"`
	CommunityID   string `db:"community_id" json:"community_id"`
	Timeframe     string `db:"timeframe" json:"timeframe"`
	BucketStart   string `db:"bucket_start" json:"bucket_start"`
	Positive      int    `db:"positive" json:"positive"`
	Neutral       int    `db:"neutral" json:"neutral"`
	Negative      int    `db:"negative" json:"negative"`
	ActivityCount int    `db:"activity_count" json:"activity_count"`
}

// AggregateRow is a DailyAggregate joined with its community name.
type AggregateRow struct {
	DailyAggregate
	CommunityName string `db:"canonical_name" json:"community"`
}

// BucketLayout formats DailyAggregate.BucketStart.
const BucketLayout = "2006-01-02"
