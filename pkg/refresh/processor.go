package refresh

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elonfeng/sentiradar/internal/logging"
	"github.com/elonfeng/sentiradar/internal/metrics"
	"github.com/elonfeng/sentiradar/internal/store"
	"github.com/elonfeng/sentiradar/pkg/sentiment"
	"github.com/elonfeng/sentiradar/pkg/source"
)

// Fetcher is the upstream listing API. *source.Client implements it.
type Fetcher interface {
	NewPosts(ctx context.Context, subreddit string, limit int) ([]source.Post, error)
	TopLevelComments(ctx context.Context, subreddit, postID string, limit int) ([]source.Comment, error)
}

// ProcessorOptions bounds what one community contributes to a run.
type ProcessorOptions struct {
	PostLimit    int
	CommentLimit int
	// RequestDelay is slept after every post's comment pass and once more
	// after each community.
	RequestDelay time.Duration
}

// Processor fetches, filters and scores one community at a time.
type Processor struct {
	fetcher Fetcher
	scorer  sentiment.Scorer
	opts    ProcessorOptions

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewProcessor creates a processor. A non-positive PostLimit falls back to
// 50; a CommentLimit of 0 disables comment fetching.
func NewProcessor(f Fetcher, scorer sentiment.Scorer, opts ProcessorOptions) *Processor {
	if opts.PostLimit <= 0 {
		opts.PostLimit = 50
	}
	return &Processor{
		fetcher: f,
		scorer:  scorer,
		opts:    opts,
		sleep:   source.Sleep,
		now:     time.Now,
	}
}

// Process runs one community through the pipeline, appending drafts and
// warnings to batch and counts to agg. Fetch failures become warnings; the
// returned error is fatal to the run (authentication failure or
// cancellation).
func (p *Processor) Process(ctx context.Context, community store.Community, filter *source.Filter, agg *Aggregator, batch *Batch) error {
	sub := community.CanonicalName
	log := logging.With().Str("subreddit", sub).Logger()

	posts, err := p.fetcher.NewPosts(ctx, sub, p.opts.PostLimit)
	if err != nil {
		if fatal(ctx, err) {
			return err
		}
		batch.Warn(fmt.Sprintf("r/%s: listing fetch failed: %v", sub, err))
		metrics.FetchWarnings.WithLabelValues("listing").Inc()
		log.Warn().Err(err).Msg("listing fetch failed, skipping community")
		return p.sleep(ctx, p.opts.RequestDelay)
	}

	batch.Touch(community.ID)

	kept := 0
	for _, post := range posts {
		if !filter.KeepPost(post) {
			continue
		}
		// A post listed under two communities is counted once, where it was
		// first seen.
		if !batch.claim(source.KindPost, post.ID) {
			log.Debug().Str("post_id", post.ID).Msg("post already processed in this run")
			continue
		}
		kept++
		p.addPost(community.ID, post, agg, batch)

		if p.opts.CommentLimit > 0 {
			if err := p.processComments(ctx, community, post, filter, agg, batch); err != nil {
				return err
			}
		}
		if err := p.sleep(ctx, p.opts.RequestDelay); err != nil {
			return err
		}
	}

	log.Info().Int("listed", len(posts)).Int("kept", kept).Msg("community processed")
	return p.sleep(ctx, p.opts.RequestDelay)
}

func (p *Processor) processComments(ctx context.Context, community store.Community, post source.Post, filter *source.Filter, agg *Aggregator, batch *Batch) error {
	sub := community.CanonicalName
	comments, err := p.fetcher.TopLevelComments(ctx, sub, post.ID, p.opts.CommentLimit)
	if err != nil {
		if fatal(ctx, err) {
			return err
		}
		batch.Warn(fmt.Sprintf("r/%s post %s: comment fetch failed: %v", sub, post.ID, err))
		metrics.FetchWarnings.WithLabelValues("comments").Inc()
		logging.Warn().Err(err).Str("subreddit", sub).Str("post_id", post.ID).Msg("comment fetch failed")
		return nil
	}

	for _, c := range comments {
		if !filter.KeepComment(c) || !batch.claim(source.KindComment, c.ID) {
			continue
		}
		text := source.CommentText(c)
		batch.Comments = append(batch.Comments, CommentDraft{
			PostExternalID: post.ID,
			ExternalID:     c.ID,
			Author:         author(c.Author),
			PostedAt:       c.CreatedAt(),
			Body:           text,
		})
		if text == "" {
			continue
		}
		compound := p.scorer.Score(text)
		label := sentiment.LabelFor(compound)
		batch.CommentSentiments = append(batch.CommentSentiments, SentimentDraft{
			SubjectExternalID: c.ID,
			Compound:          compound,
			Label:             label,
			ScoredAt:          p.now().UTC(),
		})
		agg.Add(community.ID, c.CreatedAt(), label)
		metrics.ItemsScored.WithLabelValues(string(store.SubjectComment), string(label)).Inc()
	}
	return nil
}

func (p *Processor) addPost(communityID string, post source.Post, agg *Aggregator, batch *Batch) {
	score, numComments := post.Score, post.NumComments
	draft := PostDraft{
		CommunityID:  communityID,
		ExternalID:   post.ID,
		Title:        post.Title,
		Author:       author(post.Author),
		PostedAt:     post.CreatedAt(),
		Score:        &score,
		CommentCount: &numComments,
		RawPayload:   string(post.Raw),
	}
	if post.Permalink != "" {
		permalink := post.Permalink
		draft.Permalink = &permalink
	}
	batch.Posts = append(batch.Posts, draft)

	text := source.PostText(post)
	if text == "" {
		return
	}
	compound := p.scorer.Score(text)
	label := sentiment.LabelFor(compound)
	batch.PostSentiments = append(batch.PostSentiments, SentimentDraft{
		SubjectExternalID: post.ID,
		Compound:          compound,
		Label:             label,
		ScoredAt:          p.now().UTC(),
	})
	agg.Add(communityID, post.CreatedAt(), label)
	metrics.ItemsScored.WithLabelValues(string(store.SubjectPost), string(label)).Inc()
}

// fatal reports whether a fetch error must abort the run instead of being
// recorded as a warning.
func fatal(ctx context.Context, err error) bool {
	var aerr *source.AuthError
	if errors.As(err, &aerr) {
		return true
	}
	return ctx.Err() != nil
}

func author(name string) *string {
	name = strings.TrimSpace(name)
	if source.CleanText(name) == "" {
		return nil
	}
	return &name
}
