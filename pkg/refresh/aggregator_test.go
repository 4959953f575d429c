package refresh

import (
	"errors"
	"testing"
	"time"

	"github.com/elonfeng/sentiradar/internal/config"
	"github.com/elonfeng/sentiradar/pkg/sentiment"
)

func TestParseTimeframe(t *testing.T) {
	for _, s := range []string{"24h", "7d", "30d"} {
		tf, err := ParseTimeframe(s)
		if err != nil || string(tf) != s {
			t.Errorf("ParseTimeframe(%q) = %q, %v", s, tf, err)
		}
	}
	for _, s := range []string{"", "1h", "7D", "90d"} {
		_, err := ParseTimeframe(s)
		var cerr *config.Error
		if !errors.As(err, &cerr) || !errors.Is(err, config.ErrUnsupportedTimeframe) {
			t.Errorf("ParseTimeframe(%q) = %v, want config.Error wrapping ErrUnsupportedTimeframe", s, err)
		}
	}
}

func TestTimeframeCutoff(t *testing.T) {
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		tf   Timeframe
		want time.Time
	}{
		{Timeframe24h, time.Date(2024, 3, 30, 12, 0, 0, 0, time.UTC)},
		{Timeframe7d, time.Date(2024, 3, 24, 12, 0, 0, 0, time.UTC)},
		{Timeframe30d, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := tt.tf.Cutoff(now); !got.Equal(tt.want) {
			t.Errorf("%s cutoff = %v, want %v", tt.tf, got, tt.want)
		}
	}
}

func TestAggregatorDayBoundary(t *testing.T) {
	agg := NewAggregator()
	late := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	early := time.Date(2024, 1, 2, 0, 1, 0, 0, time.UTC)
	agg.Add("c1", late, sentiment.Positive)
	agg.Add("c1", early, sentiment.Positive)

	rows := agg.Rows(Timeframe24h)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2 distinct buckets", len(rows))
	}
	if rows[0].BucketStart != "2024-01-01" || rows[1].BucketStart != "2024-01-02" {
		t.Errorf("buckets = %s, %s", rows[0].BucketStart, rows[1].BucketStart)
	}
}

func TestAggregatorUsesUTC(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	agg := NewAggregator()
	// 2024-01-02 08:00 JST is 2024-01-01 23:00 UTC.
	agg.Add("c1", time.Date(2024, 1, 2, 8, 0, 0, 0, tokyo), sentiment.Neutral)

	if _, ok := agg.Get("c1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)); !ok {
		t.Error("item should land in the UTC day 2024-01-01")
	}
}

func TestAggregatorCounts(t *testing.T) {
	agg := NewAggregator()
	day := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	agg.Add("c2", day, sentiment.Positive)
	agg.Add("c2", day.Add(time.Hour), sentiment.Negative)
	agg.Add("c2", day.Add(2*time.Hour), sentiment.Neutral)
	agg.Add("c2", day.Add(3*time.Hour), sentiment.Positive)
	agg.Add("c1", day, sentiment.Negative)

	got, ok := agg.Get("c2", day)
	if !ok {
		t.Fatal("missing bucket")
	}
	want := Counts{Positive: 2, Neutral: 1, Negative: 1, ActivityCount: 4}
	if got != want {
		t.Errorf("counts = %+v, want %+v", got, want)
	}

	if ids := agg.Communities(); len(ids) != 2 || ids[0] != "c1" || ids[1] != "c2" {
		t.Errorf("Communities = %v", ids)
	}

	rows := agg.Rows(Timeframe7d)
	if len(rows) != 2 || rows[0].CommunityID != "c1" || rows[1].CommunityID != "c2" {
		t.Fatalf("rows not ordered by community: %+v", rows)
	}
	for _, r := range rows {
		if r.Timeframe != "7d" {
			t.Errorf("row timeframe = %q", r.Timeframe)
		}
		if r.Positive+r.Neutral+r.Negative != r.ActivityCount {
			t.Errorf("labels do not sum to activity: %+v", r)
		}
	}
}
