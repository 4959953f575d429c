package refresh

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/elonfeng/sentiradar/internal/logging"
	"github.com/elonfeng/sentiradar/internal/store"
)

// PersistenceError wraps a store failure during the flush. It is always
// fatal to the run.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// FlushStats are the rows a flush wrote.
type FlushStats struct {
	Posts      int
	Comments   int
	Sentiments int
	Aggregates int
}

// Persister writes a run's drafts and aggregates. Every step is an upsert by
// natural key or a delete-then-insert keyed by the touched set, so flushing
// the same batch twice leaves the store unchanged.
type Persister struct {
	store store.Store
}

// NewPersister creates a persister over st.
func NewPersister(st store.Store) *Persister {
	return &Persister{store: st}
}

// Flush persists batch and replaces the aggregate snapshot for every
// community the run fetched, including those that kept nothing.
//
// The steps are not wrapped in one transaction. A crash between the
// sentiment and aggregate replacement leaves aggregates stale until the
// next run.
func (p *Persister) Flush(ctx context.Context, timeframe Timeframe, batch *Batch, agg *Aggregator) (FlushStats, error) {
	var stats FlushStats

	// Posts: upsert, then resolve internal ids by external id.
	posts := dedupePosts(batch.Posts)
	rows := make([]store.Post, 0, len(posts))
	for _, d := range posts {
		rows = append(rows, store.Post{
			CommunityID:  d.CommunityID,
			ExternalID:   d.ExternalID,
			Title:        d.Title,
			Author:       d.Author,
			PostedAt:     d.PostedAt.UTC(),
			Score:        d.Score,
			CommentCount: d.CommentCount,
			Permalink:    d.Permalink,
			RawPayload:   d.RawPayload,
		})
	}
	if len(rows) > 0 {
		if err := p.store.UpsertPosts(ctx, rows); err != nil {
			return stats, &PersistenceError{Op: "upsert posts", Err: err}
		}
	}
	postIDs, err := p.store.PostIDsByExternalID(ctx, externalIDs(rows, func(r store.Post) string { return r.ExternalID }))
	if err != nil {
		return stats, &PersistenceError{Op: "resolve post ids", Err: err}
	}
	stats.Posts = len(postIDs)

	// Comments: re-key to the parent's internal id, dropping orphans.
	comments := dedupeComments(batch.Comments)
	crows := make([]store.Comment, 0, len(comments))
	for _, d := range comments {
		parent, ok := postIDs[d.PostExternalID]
		if !ok {
			logging.Warn().Str("comment_id", d.ExternalID).Str("post_id", d.PostExternalID).
				Msg("dropping comment with unresolved parent post")
			continue
		}
		crows = append(crows, store.Comment{
			PostID:     parent,
			ExternalID: d.ExternalID,
			Author:     d.Author,
			PostedAt:   d.PostedAt.UTC(),
			Body:       d.Body,
		})
	}
	if len(crows) > 0 {
		if err := p.store.UpsertComments(ctx, crows); err != nil {
			return stats, &PersistenceError{Op: "upsert comments", Err: err}
		}
	}
	commentIDs, err := p.store.CommentIDsByExternalID(ctx, externalIDs(crows, func(r store.Comment) string { return r.ExternalID }))
	if err != nil {
		return stats, &PersistenceError{Op: "resolve comment ids", Err: err}
	}
	stats.Comments = len(commentIDs)

	// Sentiments: re-key, then replace everything scored for touched subjects.
	scores := make([]store.SentimentScore, 0, len(batch.PostSentiments)+len(batch.CommentSentiments))
	for _, d := range dedupeSentiments(batch.PostSentiments) {
		id, ok := postIDs[d.SubjectExternalID]
		if !ok {
			continue
		}
		scores = append(scores, sentimentRow(store.SubjectPost, &id, nil, d))
	}
	for _, d := range dedupeSentiments(batch.CommentSentiments) {
		id, ok := commentIDs[d.SubjectExternalID]
		if !ok {
			continue
		}
		scores = append(scores, sentimentRow(store.SubjectComment, nil, &id, d))
	}

	if _, err := p.store.DeleteSentimentsByPost(ctx, values(postIDs)); err != nil {
		return stats, &PersistenceError{Op: "delete post sentiments", Err: err}
	}
	if _, err := p.store.DeleteSentimentsByComment(ctx, values(commentIDs)); err != nil {
		return stats, &PersistenceError{Op: "delete comment sentiments", Err: err}
	}
	if len(scores) > 0 {
		if err := p.store.InsertSentiments(ctx, scores); err != nil {
			return stats, &PersistenceError{Op: "insert sentiments", Err: err}
		}
	}
	stats.Sentiments = len(scores)

	// Aggregates: drop the touched snapshot, then write the recomputed one.
	if _, err := p.store.DeleteAggregates(ctx, string(timeframe), touchedCommunities(batch, agg)); err != nil {
		return stats, &PersistenceError{Op: "delete aggregates", Err: err}
	}
	aggRows := agg.Rows(timeframe)
	if len(aggRows) > 0 {
		if err := p.store.UpsertAggregates(ctx, aggRows); err != nil {
			return stats, &PersistenceError{Op: "upsert aggregates", Err: err}
		}
	}
	stats.Aggregates = len(aggRows)

	return stats, nil
}

// touchedCommunities is every community fetched in the run plus any that
// reached the aggregator, sorted.
func touchedCommunities(batch *Batch, agg *Aggregator) []string {
	set := make(map[string]struct{}, len(batch.Touched))
	for _, id := range batch.Touched {
		set[id] = struct{}{}
	}
	for _, id := range agg.Communities() {
		set[id] = struct{}{}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sentimentRow(subject store.SubjectType, postID, commentID *string, d SentimentDraft) store.SentimentScore {
	scoredAt := d.ScoredAt
	if scoredAt.IsZero() {
		scoredAt = time.Now()
	}
	return store.SentimentScore{
		SubjectType: subject,
		PostID:      postID,
		CommentID:   commentID,
		Compound:    d.Compound,
		Label:       string(d.Label),
		ScoredAt:    scoredAt.UTC(),
	}
}

// dedupePosts keeps the last draft per external id, in first-seen order.
func dedupePosts(in []PostDraft) []PostDraft {
	return dedupe(in, func(d PostDraft) string { return d.ExternalID })
}

func dedupeComments(in []CommentDraft) []CommentDraft {
	return dedupe(in, func(d CommentDraft) string { return d.ExternalID })
}

func dedupeSentiments(in []SentimentDraft) []SentimentDraft {
	return dedupe(in, func(d SentimentDraft) string { return d.SubjectExternalID })
}

func dedupe[T any](in []T, key func(T) string) []T {
	index := make(map[string]int, len(in))
	out := make([]T, 0, len(in))
	for _, v := range in {
		k := key(v)
		if i, ok := index[k]; ok {
			out[i] = v
			continue
		}
		index[k] = len(out)
		out = append(out, v)
	}
	return out
}

func externalIDs[T any](rows []T, key func(T) string) []string {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, key(r))
	}
	return ids
}

func values(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
