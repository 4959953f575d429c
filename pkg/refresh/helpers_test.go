package refresh

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/elonfeng/sentiradar/internal/store"
	"github.com/elonfeng/sentiradar/pkg/sentiment"
	"github.com/elonfeng/sentiradar/pkg/source"
)

// testScorer scores "good" positive and "bad" negative, everything else 0.
var testScorer = sentiment.ScorerFunc(func(text string) float64 {
	text = strings.ToLower(text)
	switch {
	case strings.Contains(text, "good"):
		return 0.6
	case strings.Contains(text, "bad"):
		return -0.6
	}
	return 0
})

type fakeFetcher struct {
	posts      map[string][]source.Post    // by subreddit
	comments   map[string][]source.Comment // by post id
	listingErr map[string]error
	commentErr map[string]error

	listingCalls int
	commentCalls int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		posts:      map[string][]source.Post{},
		comments:   map[string][]source.Comment{},
		listingErr: map[string]error{},
		commentErr: map[string]error{},
	}
}

func (f *fakeFetcher) NewPosts(ctx context.Context, subreddit string, limit int) ([]source.Post, error) {
	f.listingCalls++
	if err := f.listingErr[subreddit]; err != nil {
		return nil, err
	}
	posts := f.posts[subreddit]
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (f *fakeFetcher) TopLevelComments(ctx context.Context, subreddit, postID string, limit int) ([]source.Comment, error) {
	f.commentCalls++
	if err := f.commentErr[postID]; err != nil {
		return nil, err
	}
	comments := f.comments[postID]
	if len(comments) > limit {
		comments = comments[:limit]
	}
	return comments, nil
}

func testPost(id, title string, created time.Time) source.Post {
	raw, _ := json.Marshal(map[string]any{"id": id, "title": title})
	return source.Post{
		ID:          id,
		Title:       title,
		Author:      "author_" + id,
		CreatedUTC:  float64(created.Unix()),
		Score:       10,
		NumComments: 2,
		Permalink:   "/r/test/comments/" + id,
		Raw:         raw,
	}
}

func testComment(id, body string, created time.Time) source.Comment {
	return source.Comment{ID: id, Author: "commenter", Body: body, CreatedUTC: float64(created.Unix())}
}

type fakeTokens struct {
	refreshes atomic.Int32
	err       error
}

func (f *fakeTokens) Token() string { return "tok" }

func (f *fakeTokens) Refresh(ctx context.Context) (string, error) {
	f.refreshes.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return "tok", nil
}

func openTestStore(t *testing.T) *store.SQLStore {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func seedCommunities(t *testing.T, st store.Store, names ...string) map[string]store.Community {
	t.Helper()
	communities, err := st.EnsureCommunities(context.Background(), names)
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string]store.Community, len(communities))
	for _, c := range communities {
		out[c.CanonicalName] = c
	}
	return out
}

func newTestProcessor(f Fetcher, sleeps *int) *Processor {
	p := NewProcessor(f, testScorer, ProcessorOptions{PostLimit: 10, CommentLimit: 5, RequestDelay: time.Second})
	p.sleep = func(ctx context.Context, d time.Duration) error {
		if sleeps != nil {
			*sleeps++
		}
		return ctx.Err()
	}
	return p
}

func newTestRunner(st store.Store, f Fetcher, tokens source.TokenSource) *Runner {
	return NewRunner(st, tokens, newTestProcessor(f, nil), nil)
}

// aggregateKeys drops the surrogate id so snapshots from different runs compare equal.
func aggregateKeys(rows []store.AggregateRow) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, fmt.Sprintf("%s/%s/%s p=%d n=%d neg=%d a=%d",
			r.CommunityName, r.Timeframe, r.BucketStart, r.Positive, r.Neutral, r.Negative, r.ActivityCount))
	}
	return out
}
