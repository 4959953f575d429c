package refresh

import (
	"time"

	"github.com/elonfeng/sentiradar/pkg/sentiment"
)

// PostDraft is a kept post that has not been persisted yet.
type PostDraft struct {
	CommunityID  string
	ExternalID   string
	Title        string
	Author       *string
	PostedAt     time.Time
	Score        *int
	CommentCount *int
	Permalink    *string
	RawPayload   string
}

// CommentDraft is a kept comment, keyed to its parent by the parent's
// external id until the flush resolves internal ids.
type CommentDraft struct {
	PostExternalID string
	ExternalID     string
	Author         *string
	PostedAt       time.Time
	Body           string
}

// SentimentDraft is a score for the post or comment with SubjectExternalID.
type SentimentDraft struct {
	SubjectExternalID string
	Compound          float64
	Label             sentiment.Label
	ScoredAt          time.Time
}

// Batch collects every draft and warning produced during one run. The
// flush consumes it once all communities are processed.
type Batch struct {
	Posts             []PostDraft
	PostSentiments    []SentimentDraft
	Comments          []CommentDraft
	CommentSentiments []SentimentDraft
	Warnings          []string

	// Touched holds, in processing order, every community whose listing was
	// fetched. Their aggregate snapshots are replaced by the flush even when
	// nothing was kept.
	Touched []string

	seen map[string]struct{}
}

// Touch marks a community as fetched in this run.
func (b *Batch) Touch(communityID string) {
	for _, id := range b.Touched {
		if id == communityID {
			return
		}
	}
	b.Touched = append(b.Touched, communityID)
}

// claim reports whether the subject is new to this run and records it. Kind
// is the upstream thing kind, so post and comment ids never collide.
func (b *Batch) claim(kind, externalID string) bool {
	if b.seen == nil {
		b.seen = make(map[string]struct{})
	}
	key := kind + "_" + externalID
	if _, ok := b.seen[key]; ok {
		return false
	}
	b.seen[key] = struct{}{}
	return true
}

// Warn records a non-fatal problem.
func (b *Batch) Warn(msg string) {
	b.Warnings = append(b.Warnings, msg)
}

// HasWarnings reports whether any sub-fetch failed.
func (b *Batch) HasWarnings() bool { return len(b.Warnings) > 0 }
