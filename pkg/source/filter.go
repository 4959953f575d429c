package source

import (
	"strings"
	"time"
)

// deletionSentinels are bodies Reddit substitutes for removed content.
var deletionSentinels = []string{"[deleted]", "[removed]"}

// CleanText returns s trimmed, or "" when it is a deletion sentinel.
func CleanText(s string) string {
	s = strings.TrimSpace(s)
	for _, sentinel := range deletionSentinels {
		if s == sentinel {
			return ""
		}
	}
	return s
}

// PostText is the combined title and self text scored for a post.
func PostText(p Post) string {
	return strings.TrimSpace(CleanText(p.Title) + "\n" + CleanText(p.Selftext))
}

// CommentText is the body scored for a comment.
func CommentText(c Comment) string {
	return CleanText(c.Body)
}

// Filter decides which listing items a run keeps. It is pure and holds only
// the run's cutoff and optional keyword.
type Filter struct {
	cutoff  int64
	keyword string
}

// NewFilter creates a filter for items created at or after cutoff. The
// keyword is matched as a lower-cased substring exactly as given; an empty
// keyword matches everything.
func NewFilter(cutoff time.Time, keyword string) *Filter {
	return &Filter{
		cutoff:  cutoff.Unix(),
		keyword: strings.ToLower(keyword),
	}
}

// Cutoff returns the earliest accepted creation time.
func (f *Filter) Cutoff() time.Time { return time.Unix(f.cutoff, 0).UTC() }

// KeepPost reports whether a post is in the window, live, and matches the keyword.
func (f *Filter) KeepPost(p Post) bool {
	return f.keep(p.Stickied, p.RemovedByCategory, p.CreatedUTC, PostText(p))
}

// KeepComment reports whether a comment is in the window, live, and matches the keyword.
func (f *Filter) KeepComment(c Comment) bool {
	return f.keep(c.Stickied, c.RemovedByCategory, c.CreatedUTC, CommentText(c))
}

func (f *Filter) keep(stickied bool, removedBy *string, created float64, text string) bool {
	if stickied {
		return false
	}
	if removedBy != nil && *removedBy != "" {
		return false
	}
	if created < float64(f.cutoff) {
		return false
	}
	if text == "" {
		return false
	}
	return f.matches(text)
}

func (f *Filter) matches(text string) bool {
	if f.keyword == "" {
		return true
	}
	return strings.Contains(strings.ToLower(text), f.keyword)
}
