package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"
)

// NewPosts returns up to limit of the newest submissions in subreddit.
func (c *Client) NewPosts(ctx context.Context, subreddit string, limit int) ([]Post, error) {
	q := url.Values{
		"limit":    {strconv.Itoa(limit)},
		"raw_json": {"1"},
	}
	var l listing
	if err := c.GetJSON(ctx, "/r/"+url.PathEscape(subreddit)+"/new", q, &l); err != nil {
		return nil, err
	}

	posts := make([]Post, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		if child.Kind != KindPost {
			continue
		}
		var p Post
		if err := json.Unmarshal(child.Data, &p); err != nil {
			return nil, fmt.Errorf("decode r/%s post: %w", subreddit, err)
		}
		p.Raw = append(json.RawMessage(nil), child.Data...)
		posts = append(posts, p)
		if limit > 0 && len(posts) == limit {
			break
		}
	}
	return posts, nil
}

// TopLevelComments returns up to limit first-level comments of a post.
func (c *Client) TopLevelComments(ctx context.Context, subreddit, postID string, limit int) ([]Comment, error) {
	q := url.Values{
		"limit":    {strconv.Itoa(limit)},
		"depth":    {"1"},
		"sort":     {"top"},
		"raw_json": {"1"},
	}
	// The response is [post listing, comment listing].
	var pair []listing
	path := fmt.Sprintf("/r/%s/comments/%s", url.PathEscape(subreddit), url.PathEscape(postID))
	if err := c.GetJSON(ctx, path, q, &pair); err != nil {
		return nil, err
	}
	if len(pair) < 2 {
		return nil, nil
	}

	var comments []Comment
	for _, child := range pair[1].Data.Children {
		if child.Kind != KindComment {
			continue
		}
		var cm Comment
		if err := json.Unmarshal(child.Data, &cm); err != nil {
			return nil, fmt.Errorf("decode comment on %s: %w", postID, err)
		}
		comments = append(comments, cm)
		if limit > 0 && len(comments) == limit {
			break
		}
	}
	return comments, nil
}
