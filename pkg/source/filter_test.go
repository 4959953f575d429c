package source

import (
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func TestCleanText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  hello  ", "hello"},
		{"[deleted]", ""},
		{" [removed] ", ""},
		{"[deleted] but not really", "[deleted] but not really"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanText(tt.in); got != tt.want {
			t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPostText(t *testing.T) {
	if got := PostText(Post{Title: "Title", Selftext: "body"}); got != "Title\nbody" {
		t.Errorf("PostText = %q", got)
	}
	if got := PostText(Post{Title: "Only title", Selftext: "[removed]"}); got != "Only title" {
		t.Errorf("PostText with removed body = %q", got)
	}
	if got := PostText(Post{Title: "[deleted]", Selftext: "[deleted]"}); got != "" {
		t.Errorf("PostText of sentinels = %q", got)
	}
}

func TestFilterWindow(t *testing.T) {
	cutoff := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := NewFilter(cutoff, "")
	at := func(d time.Duration) float64 { return float64(cutoff.Add(d).Unix()) }

	tests := []struct {
		name string
		post Post
		want bool
	}{
		{"one second before cutoff", Post{Title: "x", CreatedUTC: at(-time.Second)}, false},
		{"exactly at cutoff", Post{Title: "x", CreatedUTC: at(0)}, true},
		{"one second after cutoff", Post{Title: "x", CreatedUTC: at(time.Second)}, true},
		{"stickied", Post{Title: "x", CreatedUTC: at(time.Hour), Stickied: true}, false},
		{"removed by moderator", Post{Title: "x", CreatedUTC: at(time.Hour), RemovedByCategory: strPtr("moderator")}, false},
		{"empty removal category", Post{Title: "x", CreatedUTC: at(time.Hour), RemovedByCategory: strPtr("")}, true},
		{"deleted text", Post{Title: "[deleted]", Selftext: "[removed]", CreatedUTC: at(time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.KeepPost(tt.post); got != tt.want {
				t.Errorf("KeepPost = %v, want %v", got, tt.want)
			}
		})
	}
	if !f.Cutoff().Equal(cutoff) {
		t.Errorf("Cutoff = %v, want %v", f.Cutoff(), cutoff)
	}
}

func TestFilterKeyword(t *testing.T) {
	cutoff := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	created := float64(cutoff.Add(time.Hour).Unix())
	f := NewFilter(cutoff, "codex")

	if !f.KeepPost(Post{Title: "New CODEX feature", CreatedUTC: created}) {
		t.Error("keyword match should be case-insensitive")
	}
	if !f.KeepPost(Post{Title: "Release notes", Selftext: "try the codex cli", CreatedUTC: created}) {
		t.Error("keyword in self text should match")
	}
	if f.KeepPost(Post{Title: "unrelated topic", CreatedUTC: created}) {
		t.Error("post without keyword should be dropped")
	}
	if !f.KeepComment(Comment{Body: "Codex is neat", CreatedUTC: created}) {
		t.Error("comment with keyword should be kept")
	}
	if f.KeepComment(Comment{Body: "unrelated topic", CreatedUTC: created}) {
		t.Error("comment without keyword should be dropped")
	}
}

func TestFilterKeywordIsLiteral(t *testing.T) {
	cutoff := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	created := float64(cutoff.Add(time.Hour).Unix())
	f := NewFilter(cutoff, " Codex")

	if !f.KeepPost(Post{Title: "the new codex cli", CreatedUTC: created}) {
		t.Error("keyword with a leading space should match after a word")
	}
	if f.KeepPost(Post{Title: "codex cli", CreatedUTC: created}) {
		t.Error("keyword is not trimmed by the filter")
	}
}

func TestFilterComments(t *testing.T) {
	cutoff := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	f := NewFilter(cutoff, "")
	created := float64(cutoff.Unix())

	if !f.KeepComment(Comment{Body: "fine", CreatedUTC: created}) {
		t.Error("live comment at cutoff should be kept")
	}
	if f.KeepComment(Comment{Body: "[deleted]", CreatedUTC: created}) {
		t.Error("deleted comment should be dropped")
	}
	if f.KeepComment(Comment{Body: "pinned", CreatedUTC: created, Stickied: true}) {
		t.Error("stickied comment should be dropped")
	}
	if f.KeepComment(Comment{Body: "old", CreatedUTC: created - 1}) {
		t.Error("comment before cutoff should be dropped")
	}
}
