// Package source talks to the Reddit API: token grants, rate-limited
// fetching, listing decoding and the per-item content filter.
package source

import (
	"time"

	"github.com/goccy/go-json"
)

// Thing kinds recognised in listings. Everything else is ignored.
const (
	KindComment = "t1"
	KindPost    = "t3"
)

// Post is a submission as returned by a subreddit listing.
type Post struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	Selftext          string  `json:"selftext"`
	Author            string  `json:"author"`
	CreatedUTC        float64 `json:"created_utc"`
	Score             int     `json:"score"`
	NumComments       int     `json:"num_comments"`
	Permalink         string  `json:"permalink"`
	Stickied          bool    `json:"stickied"`
	RemovedByCategory *string `json:"removed_by_category"`

	// Raw is the upstream data object, kept verbatim.
	Raw json.RawMessage `json:"-"`
}

// CreatedAt returns the creation time in UTC.
func (p Post) CreatedAt() time.Time { return epochToTime(p.CreatedUTC) }

// Comment is a top-level comment from a post's comment tree.
type Comment struct {
	ID                string  `json:"id"`
	Author            string  `json:"author"`
	Body              string  `json:"body"`
	CreatedUTC        float64 `json:"created_utc"`
	Stickied          bool    `json:"stickied"`
	RemovedByCategory *string `json:"removed_by_category"`
}

// CreatedAt returns the creation time in UTC.
func (c Comment) CreatedAt() time.Time { return epochToTime(c.CreatedUTC) }

type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type listing struct {
	Kind string `json:"kind"`
	Data struct {
		Children []thing `json:"children"`
	} `json:"data"`
}

func epochToTime(sec float64) time.Time {
	whole := int64(sec)
	frac := int64((sec - float64(whole)) * 1e9)
	return time.Unix(whole, frac).UTC()
}
